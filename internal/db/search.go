package db

import (
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// VectorQuery is the input for a nearest-neighbour search on one vector index.
type VectorQuery struct {
	Collection string
	Index      string
	Field      string
	Vector     []float32
	TopK       int
	Similarity schema.Similarity
	Filter     filter.Expression
	// UpdatedField is the numeric field returned as Hit.Updated.
	UpdatedField string
}

// TextQuery is the input for a relevance-scored text search on one text index.
type TextQuery struct {
	Collection   string
	Index        string
	Query        string
	TopK         int
	Filter       filter.Expression
	UpdatedField string
}

// ScalarQuery is the input for a filter search on one scalar index,
// returning matches in OrderBy order.
type ScalarQuery struct {
	Collection   string
	Index        string
	Filter       filter.Expression
	OrderBy      []schema.ScalarKey
	Limit        int
	UpdatedField string
	// TagField is a tag field returned as Hit.Tags.
	TagField string
}

// Hit is a single document returned by a sub-query.
// Score is a similarity for vector queries, a relevance for text queries and 1 for scalar queries.
type Hit struct {
	ID      string
	Score   float64
	Updated int64
	Tags    []string
}
