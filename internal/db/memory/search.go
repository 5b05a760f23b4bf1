package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/hupe1980/vecgo/distance"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// VectorQuery scores every matching document exactly and returns the topK most similar.
func (s *Store) VectorQuery(ctx context.Context, q *db.VectorQuery) ([]db.Hit, error) {
	if len(q.Vector) == 0 || q.TopK <= 0 {
		return nil, fmt.Errorf("vector and positive topK are required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, spec, err := s.index(ctx, q.Collection, q.Index, schema.KindVector)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != spec.Dimensions() {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("query vector has %d dimensions, index expects %d",
			len(q.Vector), spec.Dimensions())}
	}

	var hits []db.Hit
	it := c.match(q.Filter).Iterator()
	for it.HasNext() {
		doc := c.docs[it.Next()]
		v, ok := doc.Vector(spec.Field())
		if !ok || len(v) != len(q.Vector) {
			continue
		}
		hits = append(hits, newHit(doc, score(spec.Similarity(), q.Vector, v), q.UpdatedField))
	}
	return topK(hits, q.TopK), ctx.Err()
}

// TextQuery scores matching documents with BM25 and returns the topK most relevant.
func (s *Store) TextQuery(ctx context.Context, q *db.TextQuery) ([]db.Hit, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, spec, err := s.index(ctx, q.Collection, q.Index, schema.KindText)
	if err != nil {
		return nil, err
	}

	scores := c.bm25(spec, q.Query, c.match(q.Filter))
	hits := make([]db.Hit, 0, len(scores))
	for ord, sc := range scores {
		hits = append(hits, newHit(c.docs[ord], sc, q.UpdatedField))
	}
	return topK(hits, q.TopK), ctx.Err()
}

// ScalarQuery returns matching documents ordered by every key of OrderBy, then by id.
// Documents missing a key sort after those that have it.
func (s *Store) ScalarQuery(ctx context.Context, q *db.ScalarQuery) ([]db.Hit, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, _, err := s.index(ctx, q.Collection, q.Index, schema.KindScalar)
	if err != nil {
		return nil, err
	}

	bm := c.match(q.Filter)
	docs := make([]document.Document, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		docs = append(docs, c.docs[it.Next()])
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range q.OrderBy {
			if cmp := compareKey(docs[i], docs[j], k); cmp != 0 {
				return cmp < 0
			}
		}
		return docs[i].ID() < docs[j].ID()
	})
	if len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	hits := make([]db.Hit, len(docs))
	for i, d := range docs {
		hits[i] = newHit(d, 1, q.UpdatedField)
		if q.TagField != "" {
			hits[i].Tags = slices.Clone(d.Tags(q.TagField))
		}
	}
	return hits, ctx.Err()
}

// index resolves a live index of the given kind. Callers hold the read lock.
func (s *Store) index(
	ctx context.Context, collection, name string, kind schema.Kind,
) (*collection, schema.IndexSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.IndexSpec{}, &db.Error{Op: db.OpSearch, Err: err}
	}
	c, ok := s.collections[collection]
	if !ok {
		return nil, schema.IndexSpec{}, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	spec, ok := c.indexes[name]
	if !ok {
		return nil, schema.IndexSpec{}, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	if spec.Kind() != kind {
		return nil, schema.IndexSpec{}, &db.Error{Op: db.OpSearch,
			Err: fmt.Errorf("index %s is a %s index, not %s", name, spec.Kind(), kind)}
	}
	return c, spec, nil
}

func newHit(doc document.Document, sc float64, updatedField string) db.Hit {
	h := db.Hit{ID: doc.ID(), Score: sc}
	if updatedField != "" {
		if v, ok := doc.Number(updatedField); ok {
			h.Updated = int64(v)
		}
	}
	return h
}

func topK(hits []db.Hit, k int) []db.Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// compareKey orders two documents by one scalar key; missing values go last.
func compareKey(a, b document.Document, k schema.ScalarKey) int {
	var cmp int
	if k.Type == schema.Numeric {
		av, aok := a.Number(k.Field)
		bv, bok := b.Number(k.Field)
		if missing := compareMissing(aok, bok); missing != 0 {
			return missing
		}
		switch {
		case av < bv:
			cmp = -1
		case av > bv:
			cmp = 1
		}
	} else {
		at, bt := a.Tags(k.Field), b.Tags(k.Field)
		if len(at) == 0 || len(bt) == 0 {
			return compareMissing(len(at) > 0, len(bt) > 0)
		}
		switch {
		case at[0] < bt[0]:
			cmp = -1
		case at[0] > bt[0]:
			cmp = 1
		}
	}
	if k.Direction == schema.Desc {
		cmp = -cmp
	}
	return cmp
}

func compareMissing(aok, bok bool) int {
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	}
	return 0
}

// score computes the similarity of a query and a stored vector, larger is closer.
// L2 uses the squared distance, as FT vector indexes report it.
func score(sim schema.Similarity, q, v []float32) float64 {
	switch sim {
	case schema.Dot:
		return float64(distance.Dot(q, v))
	case schema.L2:
		return 1 / (1 + float64(distance.SquaredL2(q, v)))
	default:
		qn := float64(distance.Dot(q, q))
		vn := float64(distance.Dot(v, v))
		if qn == 0 || vn == 0 {
			return 0
		}
		return float64(distance.Dot(q, v)) / math.Sqrt(qn*vn)
	}
}
