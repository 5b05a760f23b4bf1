package schema

import (
	"fmt"
	"slices"
)

// Collection is a named document set with its declared indexes in declaration order.
type Collection struct {
	name  string
	specs []IndexSpec
}

// ValidateCollectionName checks a collection name: ^[a-zA-Z0-9_-]+$, 1-64 chars.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("collection name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("collection name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// NewCollection creates a Collection snapshot. Specs are copied.
func NewCollection(name string, specs ...IndexSpec) Collection {
	return Collection{name: name, specs: slices.Clone(specs)}
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Specs returns the declared indexes in declaration order.
func (c Collection) Specs() []IndexSpec { return slices.Clone(c.specs) }

// IsEmpty reports whether nothing is declared.
func (c Collection) IsEmpty() bool { return len(c.specs) == 0 }

// Index looks up a declaration by index name.
func (c Collection) Index(name string) (IndexSpec, bool) {
	for _, s := range c.specs {
		if s.Name() == name {
			return s, true
		}
	}
	return IndexSpec{}, false
}

// Vector returns the vector index declared on field.
func (c Collection) Vector(field string) (IndexSpec, bool) {
	for _, s := range c.specs {
		if s.Kind() == KindVector && s.Field() == field {
			return s, true
		}
	}
	return IndexSpec{}, false
}

// Text returns the single active text index.
func (c Collection) Text() (IndexSpec, bool) {
	for _, s := range c.specs {
		if s.Kind() == KindText {
			return s, true
		}
	}
	return IndexSpec{}, false
}

// Scalars returns the scalar indexes in declaration order.
func (c Collection) Scalars() []IndexSpec {
	var out []IndexSpec
	for _, s := range c.specs {
		if s.Kind() == KindScalar {
			out = append(out, s)
		}
	}
	return out
}

// ScalarFor returns the first scalar index (declaration order) covering field.
func (c Collection) ScalarFor(field string) (IndexSpec, bool) {
	for _, s := range c.specs {
		if s.Kind() == KindScalar && s.Covers(field) {
			return s, true
		}
	}
	return IndexSpec{}, false
}

// FieldType returns the scalar type of field if some scalar index declares it.
func (c Collection) FieldType(field string) (FieldType, bool) {
	s, ok := c.ScalarFor(field)
	if !ok {
		return "", false
	}
	k, _ := s.ScalarKey(field)
	return k.Type, true
}
