package filter

import (
	"fmt"
	"slices"
	"strings"
)

// MaxConditions is the maximum number of conditions in one expression.
const MaxConditions = 32

// IDField is the reserved field holding the document identifier.
// Every store index carries it so sub-queries can be restricted to a candidate set.
const IDField = "__id"

// Op is a comparison operator.
type Op string

// Supported operators. Tag conditions accept eq, ne and in; numeric conditions
// accept everything except in.
const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Expression is an ordered conjunction of conditions.
type Expression struct {
	conds []Condition
}

// New validates and creates an Expression.
func New(conds ...Condition) (Expression, error) {
	if len(conds) > MaxConditions {
		return Expression{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditions)
	}
	return Expression{conds: slices.Clone(conds)}, nil
}

// Conditions returns the conditions in declaration order.
func (e Expression) Conditions() []Condition { return e.conds }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.conds) == 0 }

// Fields returns the distinct fields referenced, in first-use order.
func (e Expression) Fields() []string {
	var out []string
	for _, c := range e.conds {
		if !slices.Contains(out, c.field) {
			out = append(out, c.field)
		}
	}
	return out
}

// And returns a copy of e with c appended. The condition limit is not enforced
// here since internal conditions (candidate ids) are added after validation.
func (e Expression) And(c ...Condition) Expression {
	out := make([]Condition, 0, len(e.conds)+len(c))
	out = append(out, e.conds...)
	return Expression{conds: append(out, c...)}
}

func (e Expression) String() string {
	parts := make([]string, len(e.conds))
	for i, c := range e.conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// Condition is a single (field, operator, value) clause.
type Condition struct {
	field   string
	op      Op
	numeric bool
	number  float64
	values  []string
}

// NewTag creates an eq or ne condition on a tag field.
func NewTag(field string, op Op, value string) (Condition, error) {
	if err := checkField(field); err != nil {
		return Condition{}, err
	}
	if op != OpEq && op != OpNe {
		return Condition{}, fmt.Errorf("operator %q is not valid for tag field %q", op, field)
	}
	if value == "" {
		return Condition{}, fmt.Errorf("value is required for field %q", field)
	}
	return Condition{field: field, op: op, values: []string{value}}, nil
}

// NewIn creates a set membership condition on a tag field: any of values matches.
func NewIn(field string, values ...string) (Condition, error) {
	if err := checkField(field); err != nil {
		return Condition{}, err
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("in condition on %q requires at least one value", field)
	}
	if slices.Contains(values, "") {
		return Condition{}, fmt.Errorf("in condition on %q contains an empty value", field)
	}
	return Condition{field: field, op: OpIn, values: slices.Clone(values)}, nil
}

// NewNumeric creates a comparison on a numeric field.
func NewNumeric(field string, op Op, value float64) (Condition, error) {
	if err := checkField(field); err != nil {
		return Condition{}, err
	}
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
	default:
		return Condition{}, fmt.Errorf("operator %q is not valid for numeric field %q", op, field)
	}
	return Condition{field: field, op: op, numeric: true, number: value}, nil
}

// NewIDs restricts a query to the given document identifiers.
func NewIDs(ids ...string) Condition {
	return Condition{field: IDField, op: OpIn, values: slices.Clone(ids)}
}

func checkField(field string) error {
	if field == "" {
		return fmt.Errorf("filter field is required")
	}
	if strings.HasPrefix(field, "__") {
		return fmt.Errorf("filter field %q is reserved", field)
	}
	return nil
}

// Field returns the field name.
func (c Condition) Field() string { return c.field }

// Op returns the operator.
func (c Condition) Op() Op { return c.op }

// IsNumeric reports whether the condition compares numbers.
func (c Condition) IsNumeric() bool { return c.numeric }

// Number returns the numeric operand.
func (c Condition) Number() float64 { return c.number }

// Values returns the tag operands (one for eq/ne, the set for in).
func (c Condition) Values() []string { return c.values }

// MatchNumber evaluates a numeric condition against a stored value.
func (c Condition) MatchNumber(v float64) bool {
	switch c.op {
	case OpEq:
		return v == c.number
	case OpNe:
		return v != c.number
	case OpGt:
		return v > c.number
	case OpGte:
		return v >= c.number
	case OpLt:
		return v < c.number
	case OpLte:
		return v <= c.number
	}
	return false
}

// MatchTags evaluates a tag condition against the stored tag values of a document.
func (c Condition) MatchTags(stored []string) bool {
	hit := false
	for _, v := range c.values {
		if slices.Contains(stored, v) {
			hit = true
			break
		}
	}
	if c.op == OpNe {
		return !hit
	}
	return hit
}

func (c Condition) String() string {
	if c.numeric {
		return fmt.Sprintf("%s %s %g", c.field, c.op, c.number)
	}
	if c.op == OpIn {
		if len(c.values) > 4 {
			return fmt.Sprintf("%s in [%d values]", c.field, len(c.values))
		}
		return fmt.Sprintf("%s in %v", c.field, c.values)
	}
	return fmt.Sprintf("%s %s %q", c.field, c.op, c.values[0])
}
