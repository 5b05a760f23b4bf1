package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// parseCondition parses field:op:value. The declared scalar type of field
// decides between a tag and a numeric comparison.
func parseCondition(col schema.Collection, s string) (filter.Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return filter.Condition{}, fmt.Errorf("filter %q: want field:op:value", s)
	}
	field, op, value := parts[0], filter.Op(parts[1]), parts[2]

	typ, ok := col.FieldType(field)
	if !ok {
		return filter.Condition{}, fmt.Errorf("filter %q: field %q is not covered by a scalar index of %s",
			s, field, col.Name())
	}
	if op == filter.OpIn {
		return filter.NewIn(field, strings.Split(value, ",")...)
	}
	if typ == schema.Numeric {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("filter %q: %q is not a number", s, value)
		}
		return filter.NewNumeric(field, op, n)
	}
	return filter.NewTag(field, op, value)
}

type documentJSON struct {
	ID      string               `json:"id"`
	Vectors map[string][]float32 `json:"vectors"`
	Texts   map[string]string    `json:"texts"`
	Scalars map[string]any       `json:"scalars"`
}

// decodeDocuments reads a single document object or an array of them.
// JSON arrays of strings become tag sets.
func decodeDocuments(data []byte) ([]document.Document, error) {
	var raw []documentJSON
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	} else {
		var one documentJSON
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		raw = append(raw, one)
	}

	docs := make([]document.Document, 0, len(raw))
	for _, r := range raw {
		scalars := make(map[string]any, len(r.Scalars))
		for name, v := range r.Scalars {
			sv, err := scalarFromJSON(v)
			if err != nil {
				return nil, fmt.Errorf("document %s field %q: %w", r.ID, name, err)
			}
			scalars[name] = sv
		}
		d, err := document.New(r.ID, r.Vectors, r.Texts, scalars)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func scalarFromJSON(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return v, nil
	}
	set := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("set members must be strings, got %T", item)
		}
		set[i] = s
	}
	return set, nil
}
