package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// PutDocument stores a document as a hash under the collection prefix.
// Vector fields must match the dimensions of the live vector index on that field.
func (s *Store) PutDocument(ctx context.Context, collection string, doc document.Document) error {
	live, err := s.ListIndexes(ctx, collection)
	if err != nil {
		return err
	}
	for _, idx := range live {
		if idx.Spec.Kind() != schema.KindVector {
			continue
		}
		if v, ok := doc.Vector(idx.Spec.Field()); ok && len(v) != idx.Spec.Dimensions() {
			return fmt.Errorf("%w: field %s has %d dimensions, index %s expects %d",
				domain.ErrDimensionMismatch, idx.Spec.Field(), len(v), idx.Name, idx.Spec.Dimensions())
		}
	}

	return s.HSet(ctx, s.keys.doc(collection, doc.ID()), documentFields(doc))
}

func documentFields(doc document.Document) map[string]string {
	fields := map[string]string{filter.IDField: doc.ID()}
	for name, v := range doc.Vectors() {
		fields[name] = vectorToBytes(v)
	}
	for name, text := range doc.Texts() {
		fields[name] = text
	}
	for name, v := range doc.Scalars() {
		switch x := v.(type) {
		case float64:
			fields[name] = formatNumber(x)
		case string:
			fields[name] = x
		case []string:
			fields[name] = strings.Join(x, tagSeparator)
		}
	}
	return fields
}
