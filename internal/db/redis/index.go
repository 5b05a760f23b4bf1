package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

const metaSpecField = "spec"

// CreateIndex builds the FT index for spec, then records the spec beside it.
// If recording fails the FT index is dropped again so no index exists without its spec.
func (s *Store) CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error {
	if spec.Kind() == schema.KindText && !s.textSearch {
		return fmt.Errorf("%w: text index %q", domain.ErrUnsupported, spec.Name())
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	def := definitionFor(s.keys, collection, spec)
	cmd := s.b().Arbitrary("FT.CREATE").Args(def.args()...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	if err := s.HSet(ctx, s.keys.meta(collection, spec.Name()), map[string]string{
		metaSpecField: string(raw),
	}); err != nil {
		drop := s.b().Arbitrary("FT.DROPINDEX").Args(def.name).Build()
		_ = s.do(context.WithoutCancel(ctx), drop).Error()
		return err
	}
	return nil
}

// DropIndex removes an FT index and its recorded spec. Indexed documents are kept.
func (s *Store) DropIndex(ctx context.Context, collection, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(s.keys.index(collection, name)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return s.Del(ctx, s.keys.meta(collection, name))
}

// ListIndexes returns the live FT indexes of a collection sorted by name.
// An FT index without a recorded spec is returned with a zero Spec.
func (s *Store) ListIndexes(ctx context.Context, collection string) ([]db.LiveIndex, error) {
	cmd := s.b().Arbitrary("FT._LIST").Build()
	all, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpListIndexes, Err: err}
	}

	var names []string
	for _, ft := range all {
		if name, ok := s.keys.indexName(collection, ft); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	cmds := make([]rueidis.Completed, len(names))
	for i, name := range names {
		cmds[i] = s.b().Hgetall().Key(s.keys.meta(collection, name)).Build()
	}

	out := make([]db.LiveIndex, len(names))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("index %s: %w", names[i], err)}
		}
		out[i] = db.LiveIndex{Name: names[i]}
		if raw, ok := m[metaSpecField]; ok {
			var spec schema.IndexSpec
			if err := json.Unmarshal([]byte(raw), &spec); err == nil {
				out[i].Spec = spec
			}
		}
	}
	return out, nil
}
