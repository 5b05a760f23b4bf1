package search

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// mockSearcher records sub-queries and answers with the configured functions.
type mockSearcher struct {
	mu      sync.Mutex
	vectors []db.VectorQuery
	texts   []db.TextQuery
	scalars []db.ScalarQuery

	vectorFn func(ctx context.Context, q *db.VectorQuery) ([]db.Hit, error)
	textFn   func(ctx context.Context, q *db.TextQuery) ([]db.Hit, error)
	scalarFn func(ctx context.Context, q *db.ScalarQuery) ([]db.Hit, error)
}

func (m *mockSearcher) VectorQuery(ctx context.Context, q *db.VectorQuery) ([]db.Hit, error) {
	m.mu.Lock()
	m.vectors = append(m.vectors, *q)
	m.mu.Unlock()
	if m.vectorFn != nil {
		return m.vectorFn(ctx, q)
	}
	return nil, nil
}

func (m *mockSearcher) TextQuery(ctx context.Context, q *db.TextQuery) ([]db.Hit, error) {
	m.mu.Lock()
	m.texts = append(m.texts, *q)
	m.mu.Unlock()
	if m.textFn != nil {
		return m.textFn(ctx, q)
	}
	return nil, nil
}

func (m *mockSearcher) ScalarQuery(ctx context.Context, q *db.ScalarQuery) ([]db.Hit, error) {
	m.mu.Lock()
	m.scalars = append(m.scalars, *q)
	m.mu.Unlock()
	if m.scalarFn != nil {
		return m.scalarFn(ctx, q)
	}
	return nil, nil
}

func (m *mockSearcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors) + len(m.texts) + len(m.scalars)
}

type mockRegistry map[string]schema.Collection

func (r mockRegistry) Describe(collection string) (schema.Collection, error) {
	c, ok := r[collection]
	if !ok {
		return schema.Collection{}, domain.ErrNotFound
	}
	return c, nil
}

func beansackRegistry() mockRegistry {
	r := mockRegistry{}
	for _, c := range schema.Beansack() {
		r[c.Name()] = c
	}
	return r
}

func newTestService(t *testing.T) (*Service, *mockSearcher) {
	t.Helper()
	ms := &mockSearcher{}
	return New(ms, beansackRegistry(), Options{}), ms
}

func embedding(values ...float32) []float32 {
	v := make([]float32, schema.EmbeddingDimensions)
	copy(v, values)
	return v
}

func expr(t *testing.T, conds ...filter.Condition) filter.Expression {
	t.Helper()
	e, err := filter.New(conds...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func tagCond(t *testing.T, field, value string) filter.Condition {
	t.Helper()
	c, err := filter.NewTag(field, filter.OpEq, value)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func numCond(t *testing.T, field string, op filter.Op, v float64) filter.Condition {
	t.Helper()
	c, err := filter.NewNumeric(field, op, v)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func hitIDs[T interface{ ID() string }](hits []T) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID()
	}
	return out
}
