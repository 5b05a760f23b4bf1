package memory

import (
	"math"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

const (
	k1 = 1.2
	b  = 0.75
)

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// bm25 scores every document in candidates against query over the fields of a text index.
// Term frequency is weighted by the field weight. IDF and average length come from
// the whole collection so restricting candidates does not change a document's score.
func (c *collection) bm25(spec schema.IndexSpec, query string, candidates *roaring.Bitmap) map[uint32]float64 {
	terms := tokenize(query)
	distinct := uniq(terms)
	if len(terms) == 0 || c.all.IsEmpty() {
		return nil
	}

	type stats struct {
		tf     map[string]float64
		length int
	}
	fields := spec.TextFields()
	perDoc := make(map[uint32]stats, c.all.GetCardinality())
	df := make(map[string]int, len(terms))
	var totalLength int

	it := c.all.Iterator()
	for it.HasNext() {
		ord := it.Next()
		st := stats{tf: make(map[string]float64)}
		for _, f := range fields {
			for _, tok := range tokenize(c.docs[ord].Texts()[f.Name]) {
				st.tf[tok] += f.Weight
				st.length++
			}
		}
		if st.length == 0 {
			continue
		}
		for _, t := range distinct {
			if st.tf[t] > 0 {
				df[t]++
			}
		}
		perDoc[ord] = st
		totalLength += st.length
	}
	if len(perDoc) == 0 {
		return nil
	}

	n := float64(len(perDoc))
	avgDL := float64(totalLength) / n
	scores := make(map[uint32]float64)

	for ord, st := range perDoc {
		if !candidates.Contains(ord) {
			continue
		}
		var score float64
		for _, t := range terms {
			tf := st.tf[t]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			score += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*(float64(st.length)/avgDL)))
		}
		if score > 0 {
			scores[ord] = score
		}
	}
	return scores
}

func uniq(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
