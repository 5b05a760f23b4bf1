package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Kind tags the IndexSpec variant.
type Kind string

// Index kinds.
const (
	KindVector Kind = "vector"
	KindText   Kind = "text"
	KindScalar Kind = "scalar"
)

// Similarity is the vector similarity metric.
type Similarity string

// Supported similarity metrics.
const (
	Cosine Similarity = "cosine"
	Dot    Similarity = "dot"
	L2     Similarity = "l2"
)

// IsValid checks if the metric is supported.
func (s Similarity) IsValid() bool {
	return s == Cosine || s == Dot || s == L2
}

// Direction is the sort direction of a scalar key.
type Direction int

// Scalar key directions, matching the 1/-1 convention of document stores.
const (
	Asc  Direction = 1
	Desc Direction = -1
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// MarshalJSON encodes the direction as "asc" or "desc".
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "asc"/"desc" as well as 1/-1.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "asc":
			*d = Asc
		case "desc":
			*d = Desc
		default:
			return fmt.Errorf("invalid direction %q", s)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid direction %s", data)
	}
	*d = Direction(n)
	return nil
}

// FieldType is the storage type of a scalar key.
type FieldType string

// Scalar field types.
const (
	Numeric FieldType = "numeric"
	Tag     FieldType = "tag"
)

// DefaultListCount is the inverted-file list count used when none is given.
const DefaultListCount = 10

// ScalarKey is one column of a composite scalar index.
type ScalarKey struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
	Type      FieldType `json:"type"`
}

// TextField is one field merged into the weighted text index.
type TextField struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// IndexSpec is one declared index (immutable value object).
// Exactly one variant is populated, selected by Kind.
type IndexSpec struct {
	name string
	kind Kind

	// vector
	field      string
	dimensions int
	similarity Similarity
	listCount  int

	// text
	textFields []TextField

	// scalar
	scalarKeys []ScalarKey
}

// NewVector validates and creates a vector index on one field.
func NewVector(name, field string, dimensions int, similarity Similarity, listCount int) (IndexSpec, error) {
	if listCount == 0 {
		listCount = DefaultListCount
	}
	s := IndexSpec{
		name: name, kind: KindVector,
		field: field, dimensions: dimensions, similarity: similarity, listCount: listCount,
	}
	return s, s.Validate()
}

// NewText validates and creates a text index merging the given fields.
// Fields are kept sorted by name since their order carries no meaning.
func NewText(name string, fields ...TextField) (IndexSpec, error) {
	tf := make([]TextField, len(fields))
	for i, f := range fields {
		if f.Weight == 0 {
			f.Weight = 1
		}
		tf[i] = f
	}
	sort.Slice(tf, func(i, j int) bool { return tf[i].Name < tf[j].Name })
	s := IndexSpec{name: name, kind: KindText, textFields: tf}
	return s, s.Validate()
}

// NewScalar validates and creates a composite scalar index. Key order is preserved.
func NewScalar(name string, keys ...ScalarKey) (IndexSpec, error) {
	sk := make([]ScalarKey, len(keys))
	for i, k := range keys {
		if k.Direction == 0 {
			k.Direction = Asc
		}
		if k.Type == "" {
			k.Type = Numeric
		}
		sk[i] = k
	}
	s := IndexSpec{name: name, kind: KindScalar, scalarKeys: sk}
	return s, s.Validate()
}

// Validate checks the variant invariants.
func (s IndexSpec) Validate() error {
	if s.name == "" {
		return fmt.Errorf("index name is required")
	}
	if len(s.name) > 64 || !nameRegex.MatchString(s.name) {
		return fmt.Errorf("index name %q must be 1-64 alphanumeric, underscore or hyphen characters", s.name)
	}

	switch s.kind {
	case KindVector:
		if err := validateFieldName(s.field); err != nil {
			return err
		}
		if s.dimensions <= 0 {
			return fmt.Errorf("index %q: dimensions must be positive, got %d", s.name, s.dimensions)
		}
		if !s.similarity.IsValid() {
			return fmt.Errorf("index %q: unsupported similarity %q", s.name, s.similarity)
		}
		if s.listCount <= 0 {
			return fmt.Errorf("index %q: list count must be positive, got %d", s.name, s.listCount)
		}
	case KindText:
		if len(s.textFields) == 0 {
			return fmt.Errorf("index %q: text index requires at least one field", s.name)
		}
		seen := make(map[string]bool, len(s.textFields))
		for _, f := range s.textFields {
			if err := validateFieldName(f.Name); err != nil {
				return err
			}
			if f.Weight <= 0 {
				return fmt.Errorf("index %q: weight of %q must be positive", s.name, f.Name)
			}
			if seen[f.Name] {
				return fmt.Errorf("index %q: duplicate text field %q", s.name, f.Name)
			}
			seen[f.Name] = true
		}
	case KindScalar:
		if len(s.scalarKeys) == 0 {
			return fmt.Errorf("index %q: scalar index requires at least one field", s.name)
		}
		seen := make(map[string]bool, len(s.scalarKeys))
		for _, k := range s.scalarKeys {
			if err := validateFieldName(k.Field); err != nil {
				return err
			}
			if k.Direction != Asc && k.Direction != Desc {
				return fmt.Errorf("index %q: invalid direction %d for %q", s.name, k.Direction, k.Field)
			}
			if k.Type != Numeric && k.Type != Tag {
				return fmt.Errorf("index %q: invalid field type %q for %q", s.name, k.Type, k.Field)
			}
			if seen[k.Field] {
				return fmt.Errorf("index %q: duplicate scalar field %q", s.name, k.Field)
			}
			seen[k.Field] = true
		}
	default:
		return fmt.Errorf("index %q: unknown kind %q", s.name, s.kind)
	}
	return nil
}

func validateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name is required")
	}
	if len(name) > 64 || !nameRegex.MatchString(name) {
		return fmt.Errorf("field name %q must be 1-64 alphanumeric, underscore or hyphen characters", name)
	}
	if name[0] == '_' && len(name) > 1 && name[1] == '_' {
		return fmt.Errorf("field name %q is reserved", name)
	}
	return nil
}

// Name returns the index name.
func (s IndexSpec) Name() string { return s.name }

// Kind returns the variant tag.
func (s IndexSpec) Kind() Kind { return s.kind }

// Field returns the vector field (vector only).
func (s IndexSpec) Field() string { return s.field }

// Dimensions returns the vector length (vector only).
func (s IndexSpec) Dimensions() int { return s.dimensions }

// Similarity returns the vector metric (vector only).
func (s IndexSpec) Similarity() Similarity { return s.similarity }

// ListCount returns the inverted-file list count (vector only).
func (s IndexSpec) ListCount() int { return s.listCount }

// TextFields returns the weighted text fields sorted by name (text only).
func (s IndexSpec) TextFields() []TextField { return slices.Clone(s.textFields) }

// ScalarKeys returns the ordered scalar keys (scalar only).
func (s IndexSpec) ScalarKeys() []ScalarKey { return slices.Clone(s.scalarKeys) }

// Fields returns every document field the index reads.
func (s IndexSpec) Fields() []string {
	switch s.kind {
	case KindVector:
		return []string{s.field}
	case KindText:
		out := make([]string, len(s.textFields))
		for i, f := range s.textFields {
			out[i] = f.Name
		}
		return out
	case KindScalar:
		out := make([]string, len(s.scalarKeys))
		for i, k := range s.scalarKeys {
			out[i] = k.Field
		}
		return out
	}
	return nil
}

// Covers reports whether the index reads the given field.
func (s IndexSpec) Covers(field string) bool {
	return slices.Contains(s.Fields(), field)
}

// ScalarKey returns the key for field in a scalar index.
func (s IndexSpec) ScalarKey(field string) (ScalarKey, bool) {
	for _, k := range s.scalarKeys {
		if k.Field == field {
			return k, true
		}
	}
	return ScalarKey{}, false
}

// Equal reports whether two specs declare the same index.
func (s IndexSpec) Equal(o IndexSpec) bool {
	return len(s.Diff(o)) == 0
}

// Diff lists human-readable differences between s (declared) and o (live).
func (s IndexSpec) Diff(o IndexSpec) []string {
	var diffs []string
	if s.name != o.name {
		diffs = append(diffs, fmt.Sprintf("name %q != %q", s.name, o.name))
	}
	if s.kind != o.kind {
		return append(diffs, fmt.Sprintf("kind %s != %s", s.kind, o.kind))
	}

	switch s.kind {
	case KindVector:
		if s.field != o.field {
			diffs = append(diffs, fmt.Sprintf("field %q != %q", s.field, o.field))
		}
		if s.dimensions != o.dimensions {
			diffs = append(diffs, fmt.Sprintf("dimensions %d != %d", s.dimensions, o.dimensions))
		}
		if s.similarity != o.similarity {
			diffs = append(diffs, fmt.Sprintf("similarity %s != %s", s.similarity, o.similarity))
		}
		if s.listCount != o.listCount {
			diffs = append(diffs, fmt.Sprintf("list count %d != %d", s.listCount, o.listCount))
		}
	case KindText:
		if !slices.Equal(s.textFields, o.textFields) {
			diffs = append(diffs, fmt.Sprintf("text fields %v != %v", s.textFields, o.textFields))
		}
	case KindScalar:
		if !slices.Equal(s.scalarKeys, o.scalarKeys) {
			diffs = append(diffs, fmt.Sprintf("scalar keys %v != %v", s.scalarKeys, o.scalarKeys))
		}
	}
	return diffs
}

// specJSON is the wire and storage form of IndexSpec.
type specJSON struct {
	Name       string      `json:"name"`
	Kind       Kind        `json:"kind"`
	Field      string      `json:"field,omitempty"`
	Dimensions int         `json:"dimensions,omitempty"`
	Similarity Similarity  `json:"similarity,omitempty"`
	ListCount  int         `json:"list_count,omitempty"`
	TextFields []TextField `json:"text_fields,omitempty"`
	ScalarKeys []ScalarKey `json:"scalar_keys,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s IndexSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(specJSON{
		Name: s.name, Kind: s.kind,
		Field: s.field, Dimensions: s.dimensions, Similarity: s.similarity, ListCount: s.listCount,
		TextFields: s.textFields, ScalarKeys: s.scalarKeys,
	})
}

// UnmarshalJSON implements json.Unmarshaler and validates the decoded spec.
func (s *IndexSpec) UnmarshalJSON(data []byte) error {
	var raw specJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode index spec: %w", err)
	}

	var (
		spec IndexSpec
		err  error
	)
	switch raw.Kind {
	case KindVector:
		spec, err = NewVector(raw.Name, raw.Field, raw.Dimensions, raw.Similarity, raw.ListCount)
	case KindText:
		spec, err = NewText(raw.Name, raw.TextFields...)
	case KindScalar:
		spec, err = NewScalar(raw.Name, raw.ScalarKeys...)
	default:
		err = fmt.Errorf("index %q: unknown kind %q", raw.Name, raw.Kind)
	}
	if err != nil {
		return err
	}
	*s = spec
	return nil
}
