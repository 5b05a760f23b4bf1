package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/beansack/internal/domain"
	domschema "github.com/kailas-cloud/beansack/internal/domain/schema"
)

// store is the consumer interface for schema declarations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Hash fields of a schema key.
const (
	fieldName  = "name"
	fieldSpecs = "specs"
)

// Repo implements usecase/registry.Repository.
// One hash per collection holds its index declarations as a JSON array,
// so declaration order survives a restart.
type Repo struct {
	store  store
	prefix string
}

// New creates a schema repository writing under prefix, or domain.DefaultKeyPrefix when empty.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// Save overwrites the declarations of a collection. An empty collection is removed.
func (r *Repo) Save(ctx context.Context, col domschema.Collection) error {
	key := r.schemaKey(col.Name())
	if col.IsEmpty() {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("del schema %s: %w", col.Name(), err)
		}
		return nil
	}

	data, err := json.Marshal(col.Specs())
	if err != nil {
		return fmt.Errorf("marshal specs: %w", err)
	}
	if err := r.store.HSet(ctx, key, map[string]string{
		fieldName:  col.Name(),
		fieldSpecs: string(data),
	}); err != nil {
		return fmt.Errorf("hset schema %s: %w", col.Name(), err)
	}
	return nil
}

// Get retrieves the declarations of one collection.
func (r *Repo) Get(ctx context.Context, name string) (domschema.Collection, error) {
	m, err := r.store.HGetAll(ctx, r.schemaKey(name))
	if err != nil {
		return domschema.Collection{}, fmt.Errorf("hgetall schema %s: %w", name, err)
	}
	if len(m) == 0 {
		return domschema.Collection{}, domain.ErrNotFound
	}
	return collectionFromHash(name, m)
}

// List returns every persisted collection sorted by name.
func (r *Repo) List(ctx context.Context) ([]domschema.Collection, error) {
	keys, err := r.store.Scan(ctx, r.schemaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan schemas: %w", err)
	}
	sort.Strings(keys)

	collections := make([]domschema.Collection, 0, len(keys))
	for _, key := range keys {
		m, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", key, err)
		}
		// deleted between SCAN and HGETALL
		if len(m) == 0 {
			continue
		}
		col, err := collectionFromHash(strings.TrimPrefix(key, r.schemaKey("")), m)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		collections = append(collections, col)
	}
	return collections, nil
}

func collectionFromHash(name string, m map[string]string) (domschema.Collection, error) {
	if stored, ok := m[fieldName]; ok && stored != "" {
		name = stored
	}
	var specs []domschema.IndexSpec
	if err := json.Unmarshal([]byte(m[fieldSpecs]), &specs); err != nil {
		return domschema.Collection{}, fmt.Errorf("unmarshal specs of %s: %w", name, err)
	}
	return domschema.NewCollection(name, specs...), nil
}

// Valkey key pattern: beansack:schema:{collection}

func (r *Repo) schemaKey(name string) string {
	return fmt.Sprintf("%sschema:%s", r.prefix, name)
}
