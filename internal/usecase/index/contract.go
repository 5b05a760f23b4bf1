package index

import (
	"context"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Store is the index lifecycle contract of the backing store.
type Store interface {
	CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error
	DropIndex(ctx context.Context, collection, name string) error
	ListIndexes(ctx context.Context, collection string) ([]db.LiveIndex, error)
}

// Registry provides the declared indexes.
type Registry interface {
	Describe(collection string) (schema.Collection, error)
	Collections() []string
}
