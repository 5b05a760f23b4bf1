package search

import (
	"sort"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	"github.com/kailas-cloud/beansack/internal/domain/search/result"
)

// DefaultWeights are the merge weights used when both vector and text run.
var DefaultWeights = criteria.Weights{Vector: 0.7, Text: 0.3}

type merged struct {
	vector, text float64
	updated      int64
}

// merge combines vector and text hits into one ranked, deduplicated list.
//
// Vector similarities are clamped to [0,1]. Text relevances are divided by the
// set maximum when it exceeds 1. Each id keeps its best score per source; the
// combined score is w.Vector*vector + w.Text*text. Order is combined desc,
// then updated desc, then id asc. limit <= 0 keeps everything.
func merge(vector, text []db.Hit, w criteria.Weights, limit int) []result.Hit {
	docs := make(map[string]*merged, len(vector)+len(text))
	get := func(h db.Hit) *merged {
		m, ok := docs[h.ID]
		if !ok {
			m = &merged{}
			docs[h.ID] = m
		}
		if h.Updated > m.updated {
			m.updated = h.Updated
		}
		return m
	}

	for _, h := range vector {
		m := get(h)
		m.vector = max(m.vector, clamp(h.Score))
	}

	scale := 1.0
	for _, h := range text {
		scale = max(scale, h.Score)
	}
	for _, h := range text {
		m := get(h)
		m.text = max(m.text, clamp(h.Score/scale))
	}

	out := make([]result.Hit, 0, len(docs))
	for id, m := range docs {
		out = append(out, result.New(id, w.Vector*m.vector+w.Text*m.text, m.updated, m.vector, m.text))
	}
	sort.Slice(out, func(i, j int) bool { return result.Less(out[i], out[j]) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
