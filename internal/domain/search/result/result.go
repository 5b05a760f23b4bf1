package result

// Hit is a single ranked search result.
type Hit struct {
	id          string
	score       float64
	updated     int64
	vectorScore float64
	textScore   float64
}

// New creates a search hit. vectorScore and textScore are the normalized
// per-source scores the combined score was computed from.
func New(id string, score float64, updated int64, vectorScore, textScore float64) Hit {
	return Hit{id: id, score: score, updated: updated, vectorScore: vectorScore, textScore: textScore}
}

// ID returns the document identifier.
func (h Hit) ID() string { return h.id }

// Score returns the combined score in [0,1].
func (h Hit) Score() float64 { return h.score }

// Updated returns the tie-break timestamp.
func (h Hit) Updated() int64 { return h.updated }

// VectorScore returns the normalized vector similarity (0 when not matched by the vector sub-query).
func (h Hit) VectorScore() float64 { return h.vectorScore }

// TextScore returns the normalized text relevance (0 when not matched by the text sub-query).
func (h Hit) TextScore() float64 { return h.textScore }

// Less reports whether a ranks before b: score desc, then updated desc, then id asc.
func Less(a, b Hit) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.updated != b.updated {
		return a.updated > b.updated
	}
	return a.id < b.id
}
