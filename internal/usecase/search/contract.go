package search

import (
	"context"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Searcher runs single-index sub-queries against the store.
type Searcher interface {
	VectorQuery(ctx context.Context, q *db.VectorQuery) ([]db.Hit, error)
	TextQuery(ctx context.Context, q *db.TextQuery) ([]db.Hit, error)
	ScalarQuery(ctx context.Context, q *db.ScalarQuery) ([]db.Hit, error)
}

// Registry provides the declared indexes used for planning.
type Registry interface {
	Describe(collection string) (schema.Collection, error)
}
