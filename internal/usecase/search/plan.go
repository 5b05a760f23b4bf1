package search

import (
	"fmt"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
	"github.com/kailas-cloud/beansack/internal/domain/search/mode"
)

// plan is the resolved execution of one search against declared indexes.
type plan struct {
	collection string
	mode       mode.Mode

	vector    schema.IndexSpec
	hasVector bool
	text      schema.IndexSpec
	hasText   bool

	// groups hold the filter conditions per covering scalar index, in
	// declaration order of the first condition that selected each index.
	groups []group

	// updatedField is the numeric recency field used for tie-breaks, or "".
	updatedField string
}

type group struct {
	index  schema.IndexSpec
	filter filter.Expression
}

// newPlan checks the criteria against the declared indexes of col.
func newPlan(col schema.Collection, c *criteria.Criteria) (*plan, error) {
	p := &plan{collection: col.Name(), mode: c.Mode()}

	if v := c.Vector(); v != nil {
		spec, ok := col.Vector(v.Field)
		if !ok {
			return nil, fmt.Errorf("field %q of %s: %w", v.Field, col.Name(), domain.ErrNoVectorIndex)
		}
		if len(v.Query) != spec.Dimensions() {
			return nil, fmt.Errorf("%w: query has %d dimensions, index %s expects %d",
				domain.ErrDimensionMismatch, len(v.Query), spec.Name(), spec.Dimensions())
		}
		p.vector, p.hasVector = spec, true
	}

	if c.Text() != "" {
		spec, ok := col.Text()
		if !ok {
			return nil, fmt.Errorf("collection %s: %w", col.Name(), domain.ErrNoTextIndex)
		}
		p.text, p.hasText = spec, true
	}

	groups, err := groupConditions(col, c.Filter())
	if err != nil {
		return nil, err
	}
	p.groups = groups

	if t, ok := col.FieldType(schema.FieldUpdated); ok && t == schema.Numeric {
		p.updatedField = schema.FieldUpdated
	}
	return p, nil
}

// groupConditions assigns each condition to the first declared scalar index covering its field.
func groupConditions(col schema.Collection, expr filter.Expression) ([]group, error) {
	var groups []group
	pos := map[string]int{}

	for _, cond := range expr.Conditions() {
		spec, ok := col.ScalarFor(cond.Field())
		if !ok {
			return nil, fmt.Errorf("%w: filter field %q is not covered by a scalar index of %s",
				domain.ErrValidation, cond.Field(), col.Name())
		}
		key, _ := spec.ScalarKey(cond.Field())
		if cond.IsNumeric() != (key.Type == schema.Numeric) {
			return nil, fmt.Errorf("%w: %s condition on %s field %q",
				domain.ErrValidation, cond.Op(), key.Type, cond.Field())
		}

		i, seen := pos[spec.Name()]
		if !seen {
			i = len(groups)
			pos[spec.Name()] = i
			groups = append(groups, group{index: spec})
		}
		groups[i].filter = groups[i].filter.And(cond)
	}
	return groups, nil
}
