package registry

import (
	"context"

	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Repository persists index declarations per collection.
type Repository interface {
	Save(ctx context.Context, col schema.Collection) error
	List(ctx context.Context) ([]schema.Collection, error)
}
