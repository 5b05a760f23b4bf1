package index

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// mockStore keeps created indexes so a second run sees them live.
type mockStore struct {
	mu        sync.Mutex
	live      map[string][]db.LiveIndex
	listCalls int
	mutations int

	listFn   func(ctx context.Context, collection string) ([]db.LiveIndex, error)
	createFn func(ctx context.Context, collection string, spec schema.IndexSpec) error
	dropFn   func(ctx context.Context, collection, name string) error
}

func newMockStore() *mockStore {
	return &mockStore{live: map[string][]db.LiveIndex{}}
}

func (m *mockStore) CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error {
	m.mu.Lock()
	m.mutations++
	m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(ctx, collection, spec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[collection] = append(m.live[collection], db.LiveIndex{Name: spec.Name(), Spec: spec})
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, collection, name string) error {
	m.mu.Lock()
	m.mutations++
	m.mu.Unlock()
	if m.dropFn != nil {
		return m.dropFn(ctx, collection, name)
	}
	return nil
}

func (m *mockStore) ListIndexes(ctx context.Context, collection string) ([]db.LiveIndex, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.listFn != nil {
		return m.listFn(ctx, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.LiveIndex, len(m.live[collection]))
	copy(out, m.live[collection])
	return out, nil
}

func (m *mockStore) counts() (list, mutations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, m.mutations
}

// mockRegistry serves fixed declarations.
type mockRegistry struct {
	cols map[string]schema.Collection

	describeFn func(collection string)
}

func newMockRegistry(cols ...schema.Collection) *mockRegistry {
	r := &mockRegistry{cols: map[string]schema.Collection{}}
	for _, c := range cols {
		r.cols[c.Name()] = c
	}
	return r
}

func (r *mockRegistry) Describe(collection string) (schema.Collection, error) {
	if r.describeFn != nil {
		r.describeFn(collection)
	}
	c, ok := r.cols[collection]
	if !ok {
		return schema.Collection{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *mockRegistry) Collections() []string {
	var names []string
	for _, c := range schema.Beansack() {
		if _, ok := r.cols[c.Name()]; ok {
			names = append(names, c.Name())
		}
	}
	return names
}

func beansack(t *testing.T, name string) schema.Collection {
	t.Helper()
	for _, c := range schema.Beansack() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("collection %q not declared", name)
	return schema.Collection{}
}

func newTestManager(t *testing.T) (*Manager, *mockStore) {
	t.Helper()
	m, store, _ := newTestManagerWithRegistry(t)
	return m, store
}

func newTestManagerWithRegistry(t *testing.T) (*Manager, *mockStore, *mockRegistry) {
	t.Helper()
	store := newMockStore()
	reg := newMockRegistry(beansack(t, schema.Beans), beansack(t, schema.Concepts))
	return New(store, reg, nil), store, reg
}

// blockingList makes ListIndexes wait for release and closes started on the first call.
func blockingList(store *mockStore) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	store.listFn = func(context.Context, string) ([]db.LiveIndex, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, nil
	}
	return started, release
}
