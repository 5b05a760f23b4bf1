package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		vector  []db.Hit
		text    []db.Hit
		weights criteria.Weights
		limit   int
		want    []string
		scores  []float64
	}{
		{
			name:    "weighted combination",
			vector:  []db.Hit{{ID: "X", Score: 0.8}, {ID: "Y", Score: 0.6}},
			text:    []db.Hit{{ID: "X", Score: 0.5}, {ID: "Y", Score: 0.9}},
			weights: DefaultWeights,
			want:    []string{"X", "Y"},
			scores:  []float64{0.71, 0.69},
		},
		{
			name:    "unbounded text rescaled by max",
			text:    []db.Hit{{ID: "a", Score: 8}, {ID: "b", Score: 2}},
			weights: criteria.Weights{Text: 1},
			want:    []string{"a", "b"},
			scores:  []float64{1, 0.25},
		},
		{
			name:    "vector clamped",
			vector:  []db.Hit{{ID: "a", Score: 1.2}, {ID: "b", Score: -0.3}},
			weights: criteria.Weights{Vector: 1},
			want:    []string{"a", "b"},
			scores:  []float64{1, 0},
		},
		{
			name:    "duplicate hits keep best per source",
			vector:  []db.Hit{{ID: "a", Score: 0.4}, {ID: "a", Score: 0.9}},
			weights: criteria.Weights{Vector: 1},
			want:    []string{"a"},
			scores:  []float64{0.9},
		},
		{
			name:    "tie broken by updated then id",
			vector:  []db.Hit{{ID: "b", Score: 0.5, Updated: 1}, {ID: "a", Score: 0.5, Updated: 1}, {ID: "z", Score: 0.5, Updated: 9}},
			weights: criteria.Weights{Vector: 1},
			want:    []string{"z", "a", "b"},
		},
		{
			name:    "limit",
			vector:  []db.Hit{{ID: "a", Score: 0.1}, {ID: "b", Score: 0.2}, {ID: "c", Score: 0.3}},
			weights: criteria.Weights{Vector: 1},
			limit:   2,
			want:    []string{"c", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := merge(tt.vector, tt.text, tt.weights, tt.limit)
			require.Equal(t, tt.want, hitIDs(got))
			for i, s := range tt.scores {
				assert.InDelta(t, s, got[i].Score(), 1e-9, "score of %s", got[i].ID())
			}
		})
	}
}

func TestMerge_DocumentInBothSourcesAppearsOnce(t *testing.T) {
	got := merge(
		[]db.Hit{{ID: "a", Score: 0.6, Updated: 5}},
		[]db.Hit{{ID: "a", Score: 0.4, Updated: 5}, {ID: "b", Score: 0.2}},
		DefaultWeights, 0,
	)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID())
	assert.InDelta(t, 0.7*0.6+0.3*0.4, got[0].Score(), 1e-9)
	assert.InDelta(t, 0.6, got[0].VectorScore(), 1e-9)
	assert.InDelta(t, 0.4, got[0].TextScore(), 1e-9)
	assert.Equal(t, int64(5), got[0].Updated())
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, merge(nil, nil, DefaultWeights, 10))
}
