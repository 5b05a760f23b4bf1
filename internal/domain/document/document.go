package document

import (
	"fmt"
	"maps"
	"slices"
)

// MaxIDLength bounds document identifiers (bean ids are URLs).
const MaxIDLength = 2048

// Document is a stored bean or concept (immutable value object).
// Scalars hold float64, string or []string values; []string is a set such as mapped_urls.
type Document struct {
	id      string
	vectors map[string][]float32
	texts   map[string]string
	scalars map[string]any
}

// New validates and creates a Document. Integer scalars are widened to float64.
func New(id string, vectors map[string][]float32, texts map[string]string, scalars map[string]any) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document id is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document id too long (max %d)", MaxIDLength)
	}
	for name, v := range vectors {
		if len(v) == 0 {
			return Document{}, fmt.Errorf("vector field %q is empty", name)
		}
	}

	norm := make(map[string]any, len(scalars))
	for name, v := range scalars {
		nv, err := normalizeScalar(v)
		if err != nil {
			return Document{}, fmt.Errorf("scalar field %q: %w", name, err)
		}
		norm[name] = nv
	}

	return Document{
		id:      id,
		vectors: maps.Clone(vectors),
		texts:   maps.Clone(texts),
		scalars: norm,
	}, nil
}

func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case float64, string:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case []string:
		set := slices.Clone(x)
		slices.Sort(set)
		return slices.Compact(set), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %T", v)
	}
}

// ID returns the stable identifier.
func (d Document) ID() string { return d.id }

// Vectors returns the vector fields.
func (d Document) Vectors() map[string][]float32 { return d.vectors }

// Vector returns one vector field.
func (d Document) Vector(field string) ([]float32, bool) {
	v, ok := d.vectors[field]
	return v, ok
}

// Texts returns the text fields.
func (d Document) Texts() map[string]string { return d.texts }

// Scalars returns the scalar fields.
func (d Document) Scalars() map[string]any { return d.scalars }

// Number returns a numeric scalar.
func (d Document) Number(field string) (float64, bool) {
	v, ok := d.scalars[field].(float64)
	return v, ok
}

// Tags returns a string or string-set scalar as a list of values.
func (d Document) Tags(field string) []string {
	switch v := d.scalars[field].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// Updated returns the "updated" timestamp, or 0 when absent.
func (d Document) Updated() int64 {
	v, _ := d.Number("updated")
	return int64(v)
}
