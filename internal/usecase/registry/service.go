package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Registry holds the declared indexes of every collection.
// Reads are served from memory; writes go through the repository first
// so a failed write leaves the registry unchanged.
type Registry struct {
	repo Repository

	writeMu sync.Mutex
	mu      sync.RWMutex
	cols    map[string]schema.Collection
}

// New creates an empty registry.
func New(repo Repository) *Registry {
	return &Registry{repo: repo, cols: make(map[string]schema.Collection)}
}

// Load replaces the in-memory declarations with the persisted ones.
func (r *Registry) Load(ctx context.Context) error {
	cols, err := r.repo.List(ctx)
	if err != nil {
		return domain.StoreError("load schema", err)
	}

	loaded := make(map[string]schema.Collection, len(cols))
	for _, c := range cols {
		loaded[c.Name()] = c
	}

	r.mu.Lock()
	r.cols = loaded
	r.mu.Unlock()
	return nil
}

// Seed declares every index of cols in order. Already declared identical
// indexes are left as they are.
func (r *Registry) Seed(ctx context.Context, cols ...schema.Collection) error {
	for _, c := range cols {
		for _, spec := range c.Specs() {
			if _, err := r.Declare(ctx, c.Name(), spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Declare records spec for collection. It reports whether the registry changed.
//
// Rules:
//   - an identical redeclaration is a no-op;
//   - a text index replaces the collection's current text index in place;
//   - an index name already declared with other parameters is rejected;
//   - a vector field already covered by another vector index is rejected
//     until that index is retired.
func (r *Registry) Declare(ctx context.Context, collection string, spec schema.IndexSpec) (bool, error) {
	if err := schema.ValidateCollectionName(collection); err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := spec.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, _ := r.lookup(collection)
	specs := current.Specs()

	pos := slices.IndexFunc(specs, func(s schema.IndexSpec) bool { return s.Name() == spec.Name() })
	if pos >= 0 && specs[pos].Equal(spec) {
		return false, nil
	}

	switch {
	case spec.Kind() == schema.KindText:
		if textPos := slices.IndexFunc(specs, isText); textPos >= 0 {
			if pos >= 0 && pos != textPos {
				return false, invalid("index %q already declared as %s", spec.Name(), specs[pos].Kind())
			}
			specs[textPos] = spec
			break
		}
		if pos >= 0 {
			return false, invalid("index %q already declared as %s", spec.Name(), specs[pos].Kind())
		}
		specs = append(specs, spec)

	case pos >= 0:
		return false, invalid("index %q already declared with different parameters (%v); retire it first",
			spec.Name(), specs[pos].Diff(spec))

	default:
		if spec.Kind() == schema.KindVector {
			if existing, ok := current.Vector(spec.Field()); ok {
				return false, invalid("field %q already has vector index %q (%v); retire it first",
					spec.Field(), existing.Name(), existing.Diff(spec))
			}
		}
		specs = append(specs, spec)
	}

	if err := r.save(ctx, schema.NewCollection(collection, specs...)); err != nil {
		return false, err
	}
	return true, nil
}

// Retire removes the declaration of one index. The live index is not touched.
func (r *Registry) Retire(ctx context.Context, collection, name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, ok := r.lookup(collection)
	if !ok {
		return fmt.Errorf("collection %q: %w", collection, domain.ErrNotFound)
	}
	specs := current.Specs()
	pos := slices.IndexFunc(specs, func(s schema.IndexSpec) bool { return s.Name() == name })
	if pos < 0 {
		return fmt.Errorf("index %q in %q: %w", name, collection, domain.ErrNotFound)
	}

	return r.save(ctx, schema.NewCollection(collection, slices.Delete(specs, pos, pos+1)...))
}

// Describe returns the declarations of a collection in declaration order.
func (r *Registry) Describe(collection string) (schema.Collection, error) {
	c, ok := r.lookup(collection)
	if !ok {
		return schema.Collection{}, fmt.Errorf("collection %q: %w", collection, domain.ErrNotFound)
	}
	return c, nil
}

// Collections returns the names of all declared collections, sorted.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cols))
	for name := range r.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(collection string) (schema.Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cols[collection]
	if !ok {
		return schema.NewCollection(collection), false
	}
	return c, true
}

// save persists col and then publishes it. Caller holds writeMu.
func (r *Registry) save(ctx context.Context, col schema.Collection) error {
	if err := r.repo.Save(ctx, col); err != nil {
		return domain.StoreError("save schema", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if col.IsEmpty() {
		delete(r.cols, col.Name())
		return nil
	}
	r.cols[col.Name()] = col
	return nil
}

func isText(s schema.IndexSpec) bool { return s.Kind() == schema.KindText }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
