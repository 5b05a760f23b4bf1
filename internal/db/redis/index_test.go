package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

func declared(t *testing.T, collection, name string) schema.IndexSpec {
	t.Helper()
	for _, c := range schema.Beansack() {
		if c.Name() != collection {
			continue
		}
		if s, ok := c.Index(name); ok {
			return s
		}
	}
	t.Fatalf("no declared index %s/%s", collection, name)
	return schema.IndexSpec{}
}

func specJSON(t *testing.T, s schema.IndexSpec) string {
	t.Helper()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

// --- definition.go tests ---

func TestDefinition_Vector(t *testing.T) {
	def := definitionFor(keys{prefix: "beansack:"}, "beans", declared(t, "beans", "beans_query_search"))
	want := []string{
		"beansack:idx:beans:beans_query_search", "ON", "HASH", "PREFIX", "1", "beansack:doc:beans:",
		"SCHEMA",
		"__id", "TAG", "SEPARATOR", "|", "CASESENSITIVE",
		"search_embeddings", "VECTOR", "FLAT", "6", "TYPE", "FLOAT32", "DIM", "768", "DISTANCE_METRIC", "COSINE",
	}
	assertArgs(t, def.args(), want)
}

func TestDefinition_Scalar(t *testing.T) {
	def := definitionFor(keys{prefix: "beansack:"}, "beans", declared(t, "beans", "beans_scalar_search"))
	want := []string{
		"beansack:idx:beans:beans_scalar_search", "ON", "HASH", "PREFIX", "1", "beansack:doc:beans:",
		"SCHEMA",
		"__id", "TAG", "SEPARATOR", "|", "CASESENSITIVE",
		"updated", "NUMERIC", "SORTABLE",
		"kind", "TAG", "SEPARATOR", "|", "SORTABLE",
	}
	assertArgs(t, def.args(), want)
}

func TestDefinition_TextWeights(t *testing.T) {
	spec, err := schema.NewText("t", schema.TextField{Name: "title", Weight: 2}, schema.TextField{Name: "summary"})
	if err != nil {
		t.Fatal(err)
	}
	def := definitionFor(keys{prefix: "p:"}, "beans", spec)
	want := []string{
		"p:idx:beans:t", "ON", "HASH", "PREFIX", "1", "p:doc:beans:",
		"SCHEMA",
		"__id", "TAG", "SEPARATOR", "|", "CASESENSITIVE",
		"summary", "TEXT",
		"title", "TEXT", "WEIGHT", "2",
	}
	assertArgs(t, def.args(), want)
}

func TestDistanceMetric(t *testing.T) {
	tests := map[schema.Similarity]string{schema.Cosine: "COSINE", schema.Dot: "IP", schema.L2: "L2"}
	for sim, want := range tests {
		if got := distanceMetric(sim); got != want {
			t.Errorf("distanceMetric(%s) = %s, want %s", sim, got, want)
		}
	}
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args = %v\nwant   %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q\nargs = %v", i, got[i], want[i], got)
		}
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	spec := declared(t, "beans", "beans_text_search")

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "FT.CREATE" && cmd[1] == "beansack:idx:beans:beans_text_search"
			})).
			Return(mock.Result(mock.RedisString("OK"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("HSET", "beansack:index:beans:beans_text_search", "spec", specJSON(t, spec))).
			Return(mock.Result(mock.RedisInt64(1))),
	)

	s := NewStoreForTest(c)
	if err := s.CreateIndex(context.Background(), "beans", spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), "beans", declared(t, "beans", "beans_scalar_search"))
	if !errors.Is(err, db.ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_MetaFailureDropsIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "FT.CREATE"
			})).
			Return(mock.Result(mock.RedisString("OK"))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "HSET"
			})).
			Return(mock.ErrorResult(context.DeadlineExceeded)),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.DROPINDEX", "beansack:idx:concepts:concept_vector_search")).
			Return(mock.Result(mock.RedisString("OK"))),
	)

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), "concepts", declared(t, "concepts", "concept_vector_search"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestCreateIndex_ValkeyRejectsText(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewValkeyStoreForTest(c)
	err := s.CreateIndex(context.Background(), "beans", declared(t, "beans", "beans_text_search"))
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestDropIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.DROPINDEX", "beansack:idx:beans:beans_text_search")).
			Return(mock.Result(mock.RedisString("OK"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("DEL", "beansack:index:beans:beans_text_search")).
			Return(mock.Result(mock.RedisInt64(1))),
	)

	s := NewStoreForTest(c)
	if err := s.DropIndex(context.Background(), "beans", "beans_text_search"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "beansack:idx:beans:missing")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	err := s.DropIndex(context.Background(), "beans", "missing")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestListIndexes_FiltersByCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	text := declared(t, "beans", "beans_text_search")

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT._LIST")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("beansack:idx:beans:beans_text_search"),
			mock.RedisString("beansack:idx:concepts:concept_text_search"),
			mock.RedisString("beansack:idx:beans:legacy"),
			mock.RedisString("someone-else"),
		)))
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"spec": mock.RedisString(specJSON(t, text)),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})),
		})

	s := NewStoreForTest(c)
	live, err := s.ListIndexes(context.Background(), "beans")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(live))
	}
	// sorted by name
	if live[0].Name != "beans_text_search" || !live[0].Spec.Equal(text) {
		t.Errorf("live[0] = %+v", live[0])
	}
	if live[1].Name != "legacy" || live[1].Spec.Kind() != "" {
		t.Errorf("live[1] = %+v, want zero spec", live[1])
	}
}

func TestListIndexes_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT._LIST")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.ListIndexes(context.Background(), "beans")
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}
