package main

import (
	"testing"

	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

func beans(t *testing.T) schema.Collection {
	t.Helper()
	for _, c := range schema.Beansack() {
		if c.Name() == schema.Beans {
			return c
		}
	}
	t.Fatal("beans collection not declared")
	return schema.Collection{}
}

func TestParseCondition(t *testing.T) {
	col := beans(t)

	c, err := parseCondition(col, "kind:eq:news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.IsNumeric() || c.Op() != filter.OpEq || c.Values()[0] != "news" {
		t.Errorf("tag condition = %v", c)
	}

	c, err = parseCondition(col, "updated:gte:1700000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsNumeric() || c.Number() != 1700000000 {
		t.Errorf("numeric condition = %v", c)
	}

	c, err = parseCondition(col, "kind:in:news,blog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Op() != filter.OpIn || len(c.Values()) != 2 {
		t.Errorf("in condition = %v", c)
	}
}

func TestParseCondition_Invalid(t *testing.T) {
	col := beans(t)
	for _, s := range []string{
		"kind",
		"kind:eq",
		"title:eq:x",
		"updated:gt:yesterday",
		"kind:gt:news",
	} {
		if _, err := parseCondition(col, s); err == nil {
			t.Errorf("parseCondition(%q): expected error", s)
		}
	}
}

func TestDecodeDocuments(t *testing.T) {
	docs, err := decodeDocuments([]byte(`[
		{"id": "n1", "texts": {"keyphrase": "espresso"},
		 "scalars": {"updated": 5, "mapped_urls": ["https://b", "https://a"]}},
		{"id": "n2", "vectors": {"embeddings": [0.1, 0.2]}}
	]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].Updated() != 5 {
		t.Errorf("updated = %d", docs[0].Updated())
	}
	if urls := docs[0].Tags("mapped_urls"); len(urls) != 2 || urls[0] != "https://a" {
		t.Errorf("mapped_urls = %v", urls)
	}
	if _, ok := docs[1].Vector("embeddings"); !ok {
		t.Error("vector not decoded")
	}
}

func TestDecodeDocuments_Single(t *testing.T) {
	docs, err := decodeDocuments([]byte(` {"id": "A", "scalars": {"kind": "news"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != "A" {
		t.Fatalf("docs = %v", docs)
	}
}

func TestDecodeDocuments_Invalid(t *testing.T) {
	for _, in := range []string{
		`{"scalars": {}}`,
		`{"id": "A", "scalars": {"mapped_urls": [1, 2]}}`,
		`[{"id": "A"`,
	} {
		if _, err := decodeDocuments([]byte(in)); err == nil {
			t.Errorf("decodeDocuments(%s): expected error", in)
		}
	}
}
