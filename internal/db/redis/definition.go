package redis

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// tagSeparator splits multi-valued tags such as mapped_urls in the document hash.
// URLs may contain commas, so the FT default is not used.
const tagSeparator = "|"

// vectorScoreField is the alias of the KNN distance in FT.SEARCH replies.
const vectorScoreField = "__vector_score"

// textScorer pins text relevance to BM25 instead of the server default.
const textScorer = "BM25STD"

type fieldKind int

const (
	fieldNumeric fieldKind = iota
	fieldTag
	fieldText
	fieldVector
)

// ftField describes a single field in an FT index schema.
type ftField struct {
	name string
	kind fieldKind

	sortable      bool
	caseSensitive bool    // TAG
	weight        float64 // TEXT
	dim           int     // VECTOR
	distance      string  // VECTOR
}

// definition is a complete FT.CREATE definition over the hashes of one collection.
type definition struct {
	name   string
	prefix string
	fields []ftField
}

// definitionFor maps a declared index to its FT index. Every index carries the
// __id tag so sub-queries can be restricted to a candidate set.
func definitionFor(k keys, collection string, spec schema.IndexSpec) definition {
	def := definition{
		name:   k.index(collection, spec.Name()),
		prefix: k.docPrefix(collection),
		fields: []ftField{{name: filter.IDField, kind: fieldTag, caseSensitive: true}},
	}

	switch spec.Kind() {
	case schema.KindVector:
		// No IVF in Redis; FLAT is exact. The list count is kept in the spec metadata only.
		def.fields = append(def.fields, ftField{
			name: spec.Field(), kind: fieldVector,
			dim: spec.Dimensions(), distance: distanceMetric(spec.Similarity()),
		})
	case schema.KindText:
		for _, f := range spec.TextFields() {
			def.fields = append(def.fields, ftField{name: f.Name, kind: fieldText, weight: f.Weight})
		}
	case schema.KindScalar:
		for _, k := range spec.ScalarKeys() {
			kind := fieldNumeric
			if k.Type == schema.Tag {
				kind = fieldTag
			}
			def.fields = append(def.fields, ftField{name: k.Field, kind: kind, sortable: true})
		}
	}
	return def
}

func distanceMetric(sim schema.Similarity) string {
	switch sim {
	case schema.Dot:
		return "IP"
	case schema.L2:
		return "L2"
	default:
		return "COSINE"
	}
}

// args renders the FT.CREATE arguments.
func (d definition) args() []string {
	args := []string{d.name, "ON", "HASH", "PREFIX", "1", d.prefix, "SCHEMA"}
	for _, f := range d.fields {
		args = append(args, f.args()...)
	}
	return args
}

func (f ftField) args() []string {
	args := []string{f.name}

	switch f.kind {
	case fieldNumeric:
		args = append(args, "NUMERIC")

	case fieldText:
		args = append(args, "TEXT")
		if f.weight > 0 && f.weight != 1 {
			args = append(args, "WEIGHT", strconv.FormatFloat(f.weight, 'f', -1, 64))
		}

	case fieldTag:
		args = append(args, "TAG", "SEPARATOR", tagSeparator)
		if f.caseSensitive {
			args = append(args, "CASESENSITIVE")
		}

	case fieldVector:
		attrs := []string{
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(f.dim),
			"DISTANCE_METRIC", f.distance,
		}
		args = append(args, "VECTOR", "FLAT", strconv.Itoa(len(attrs)))
		args = append(args, attrs...)
	}

	if f.sortable {
		args = append(args, "SORTABLE")
	}
	return args
}

// String returns a debug representation resembling the FT.CREATE command.
func (d definition) String() string {
	return "FT.CREATE " + strings.Join(d.args(), " ")
}
