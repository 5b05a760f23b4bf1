package criteria

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
	"github.com/kailas-cloud/beansack/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed text query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	// MaxLimit caps limit and topK.
	MaxLimit = 100
)

// Vector is the vector part of a search: nearest neighbours of Query on Field.
type Vector struct {
	Field string
	Query []float32
	TopK  int
	// MinScore drops neighbours whose similarity is below it. Zero keeps all.
	MinScore float64
}

// Weights overrides the merge weights for one search.
type Weights struct {
	Vector float64
	Text   float64
}

// Criteria is a validated search request.
type Criteria struct {
	vector  *Vector
	text    string
	filter  filter.Expression
	limit   int
	weights *Weights
}

// New validates and normalizes search parameters.
// Defaults: limit=20 (clamped to 100), topK=limit (clamped to 100).
// At least one of vector, text or filter must be present.
func New(vector *Vector, text string, f filter.Expression, limit int, weights *Weights) (Criteria, error) {
	text = strings.TrimSpace(text)
	if vector == nil && text == "" && f.IsEmpty() {
		return Criteria{}, invalid("at least one of vector, text or filter is required")
	}
	if len(text) > MaxQueryLength {
		return Criteria{}, invalid("query too long (max %d chars)", MaxQueryLength)
	}
	if limit < 0 {
		return Criteria{}, invalid("limit must be positive")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var vec *Vector
	if vector != nil {
		if vector.Field == "" {
			return Criteria{}, invalid("vector field is required")
		}
		if len(vector.Query) == 0 {
			return Criteria{}, invalid("query vector is required")
		}
		if vector.TopK < 0 {
			return Criteria{}, invalid("topK must be positive")
		}
		if vector.MinScore < 0 || vector.MinScore > 1 {
			return Criteria{}, invalid("minScore must be within [0, 1], got %g", vector.MinScore)
		}
		v := *vector
		if v.TopK == 0 {
			v.TopK = limit
		}
		if v.TopK > MaxLimit {
			v.TopK = MaxLimit
		}
		vec = &v
	}

	if weights != nil {
		if weights.Vector < 0 || weights.Text < 0 || weights.Vector+weights.Text == 0 {
			return Criteria{}, invalid("weights must be non-negative and not both zero")
		}
		w := *weights
		weights = &w
	}

	return Criteria{vector: vec, text: text, filter: f, limit: limit, weights: weights}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// Vector returns the vector part, or nil.
func (c *Criteria) Vector() *Vector { return c.vector }

// Text returns the text query, or "".
func (c *Criteria) Text() string { return c.text }

// Filter returns the scalar pre-filter.
func (c *Criteria) Filter() filter.Expression { return c.filter }

// Limit returns the maximum number of results.
func (c *Criteria) Limit() int { return c.limit }

// Weights returns the per-request merge weights, or nil for the configured defaults.
func (c *Criteria) Weights() *Weights { return c.weights }

// Mode returns the search strategy implied by the criteria.
func (c *Criteria) Mode() mode.Mode { return mode.Of(c.vector != nil, c.text != "") }
