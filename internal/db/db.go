package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // consumers depend on the narrow sub-interfaces
type Store interface {
	Pinger
	HashStore
	IndexManager
	Searcher
	DocumentWriter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// LiveIndex is an index as it currently exists in the store.
// Spec is the zero value when the store holds an index it cannot describe.
type LiveIndex struct {
	Name string
	Spec schema.IndexSpec
}

// IndexManager provides index lifecycle operations scoped to a collection.
type IndexManager interface {
	CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error
	DropIndex(ctx context.Context, collection, name string) error
	ListIndexes(ctx context.Context, collection string) ([]LiveIndex, error)
}

// Searcher runs sub-queries against a single index.
type Searcher interface {
	VectorQuery(ctx context.Context, q *VectorQuery) ([]Hit, error)
	TextQuery(ctx context.Context, q *TextQuery) ([]Hit, error)
	ScalarQuery(ctx context.Context, q *ScalarQuery) ([]Hit, error)
}

// DocumentWriter stores documents. Index entries are maintained by the store on write.
type DocumentWriter interface {
	PutDocument(ctx context.Context, collection string, doc document.Document) error
}
