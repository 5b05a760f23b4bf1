// Package memory is an in-process db.Store used by tests and single-node deployments.
// It evaluates filters with roaring bitmaps and scores vectors exactly.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps hashes, indexes and documents in memory.
type Store struct {
	mu          sync.RWMutex
	hashes      map[string]map[string]string
	collections map[string]*collection
}

// collection holds the documents of one collection. Documents are addressed by
// a dense ordinal so filter results can live in bitmaps.
type collection struct {
	indexes  map[string]schema.IndexSpec
	docs     []document.Document
	ordinals map[string]uint32
	all      *roaring.Bitmap
	// tags maps field -> value -> documents carrying that tag.
	tags map[string]map[string]*roaring.Bitmap
}

// New creates an empty store.
func New() *Store {
	return &Store{
		hashes:      make(map[string]map[string]string),
		collections: make(map[string]*collection),
	}
}

func (s *Store) collection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			indexes:  make(map[string]schema.IndexSpec),
			ordinals: make(map[string]uint32),
			all:      roaring.New(),
			tags:     make(map[string]map[string]*roaring.Bitmap),
		}
		s.collections[name] = c
	}
	return c
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// --- HashStore ---

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// HGetAll returns a copy of all fields of a hash; a missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// Del deletes a key.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, key)
	return nil
}

// Scan returns hash keys matching a glob pattern, sorted.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []string
	for k := range s.hashes {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		if ok {
			found = append(found, k)
		}
	}
	sort.Strings(found)
	return found, nil
}

// --- IndexManager ---

// CreateIndex registers an index. Documents already stored become searchable immediately.
func (s *Store) CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c.indexes[spec.Name()]; ok {
		return db.ErrIndexExists
	}
	c.indexes[spec.Name()] = spec
	return nil
}

// DropIndex removes an index. Documents are kept.
func (s *Store) DropIndex(ctx context.Context, collection, name string) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(c.indexes, name)
	return nil
}

// ListIndexes returns the indexes of a collection sorted by name.
func (s *Store) ListIndexes(ctx context.Context, collection string) ([]db.LiveIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpListIndexes, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]db.LiveIndex, 0, len(c.indexes))
	for name, spec := range c.indexes {
		out = append(out, db.LiveIndex{Name: name, Spec: spec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- DocumentWriter ---

// PutDocument inserts or replaces a document. Vector fields must match the
// dimensions of the vector index on that field, if one exists.
func (s *Store) PutDocument(ctx context.Context, collection string, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	for _, spec := range c.indexes {
		if spec.Kind() != schema.KindVector {
			continue
		}
		if v, ok := doc.Vector(spec.Field()); ok && len(v) != spec.Dimensions() {
			return fmt.Errorf("%w: field %s has %d dimensions, index %s expects %d",
				domain.ErrDimensionMismatch, spec.Field(), len(v), spec.Name(), spec.Dimensions())
		}
	}

	ord, exists := c.ordinals[doc.ID()]
	if exists {
		c.untag(ord)
		c.docs[ord] = doc
	} else {
		ord = uint32(len(c.docs))
		c.docs = append(c.docs, doc)
		c.ordinals[doc.ID()] = ord
		c.all.Add(ord)
	}
	c.tag(ord, doc)
	return nil
}

func (c *collection) tag(ord uint32, doc document.Document) {
	for field, v := range doc.Scalars() {
		if _, isNumber := v.(float64); isNumber {
			continue
		}
		byValue, ok := c.tags[field]
		if !ok {
			byValue = make(map[string]*roaring.Bitmap)
			c.tags[field] = byValue
		}
		for _, tag := range doc.Tags(field) {
			bm, ok := byValue[tag]
			if !ok {
				bm = roaring.New()
				byValue[tag] = bm
			}
			bm.Add(ord)
		}
	}
}

func (c *collection) untag(ord uint32) {
	old := c.docs[ord]
	for field := range old.Scalars() {
		for _, tag := range old.Tags(field) {
			if bm, ok := c.tags[field][tag]; ok {
				bm.Remove(ord)
			}
		}
	}
}
