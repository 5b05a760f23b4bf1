package schema

// Collection names of the beansack database.
const (
	Beans    = "beans"
	Concepts = "concepts"
)

// EmbeddingDimensions is the length of every embedding produced for beans and concepts.
const EmbeddingDimensions = 768

// Field names shared by the planner and the declared schema.
const (
	FieldUpdated    = "updated"
	FieldKind       = "kind"
	FieldMatchCount = "match_count"
	FieldMappedURLs = "mapped_urls"
)

// Beansack returns the declared schema of the beans and concepts collections.
// Each vector field gets its own index so it can be tuned independently.
// Declaration order matches the provisioning order and drives index preference.
func Beansack() []Collection {
	return []Collection{
		NewCollection(Beans,
			mustVector("beans_category_search", "category_embeddings"),
			mustVector("beans_query_search", "search_embeddings"),
			// latest stuff at the top; kind is a tag so vector search can filter on it
			must(NewScalar("beans_scalar_search",
				ScalarKey{Field: FieldUpdated, Direction: Desc, Type: Numeric},
				ScalarKey{Field: FieldKind, Direction: Asc, Type: Tag},
			)),
			must(NewText("beans_text_search",
				TextField{Name: "title"},
				TextField{Name: "summary"},
				TextField{Name: "topic"},
				TextField{Name: "keywords"},
			)),
		),
		NewCollection(Concepts,
			must(NewText("concept_text_search",
				TextField{Name: "keyphrase"},
				TextField{Name: "event"},
			)),
			must(NewScalar("concept_scalar_search",
				ScalarKey{Field: FieldUpdated, Direction: Desc, Type: Numeric},
				ScalarKey{Field: FieldMatchCount, Direction: Desc, Type: Numeric},
			)),
			must(NewScalar("concept_scalar_search_url",
				ScalarKey{Field: FieldMappedURLs, Direction: Asc, Type: Tag},
			)),
			mustVector("concept_vector_search", "embeddings"),
		),
	}
}

func mustVector(name, field string) IndexSpec {
	return must(NewVector(name, field, EmbeddingDimensions, Cosine, DefaultListCount))
}

func must(s IndexSpec, err error) IndexSpec {
	if err != nil {
		panic(err)
	}
	return s
}
