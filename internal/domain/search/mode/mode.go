package mode

// Mode is the search strategy chosen by the planner from the criteria.
type Mode string

// Search mode constants.
const (
	Vector Mode = "vector"
	Text   Mode = "text"
	// Hybrid ranks by vector similarity with text relevance as the secondary score.
	Hybrid Mode = "hybrid"
	// Scalar is a pure filter search ordered by the covering scalar index.
	Scalar Mode = "scalar"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Vector || m == Text || m == Hybrid || m == Scalar
}

// Of derives the mode from which criteria are present.
func Of(hasVector, hasText bool) Mode {
	switch {
	case hasVector && hasText:
		return Hybrid
	case hasVector:
		return Vector
	case hasText:
		return Text
	default:
		return Scalar
	}
}
