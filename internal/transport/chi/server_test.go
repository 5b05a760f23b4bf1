package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/beansack/internal/db/memory"
	"github.com/kailas-cloud/beansack/internal/domain/document"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	schemarepo "github.com/kailas-cloud/beansack/internal/repository/schema"
	healthuc "github.com/kailas-cloud/beansack/internal/usecase/health"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
	registryuc "github.com/kailas-cloud/beansack/internal/usecase/registry"
	searchuc "github.com/kailas-cloud/beansack/internal/usecase/search"
)

type testEnv struct {
	store  *memory.Store
	router chi.Router
}

// newTestEnv wires the API over an in-memory store with the beansack schema declared.
// Indexes are created only when reconcile is true.
func newTestEnv(t *testing.T, reconcile bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	registry := registryuc.New(schemarepo.New(store, ""))
	require.NoError(t, registry.Seed(ctx, schema.Beansack()...))

	indexes := indexuc.New(store, registry, nil)
	if reconcile {
		_, err := indexes.ReconcileAll(ctx)
		require.NoError(t, err)
	}

	search := searchuc.New(store, registry, searchuc.Options{})
	health := healthuc.New(store, indexes)

	r := chi.NewRouter()
	NewServer(registry, indexes, search, health, nil).Register(r)
	return &testEnv{store: store, router: r}
}

func (e *testEnv) put(t *testing.T, collection, id string, vectors map[string][]float32, scalars map[string]any) {
	t.Helper()
	doc, err := document.New(id, vectors, nil, scalars)
	require.NoError(t, err)
	require.NoError(t, e.store.PutDocument(context.Background(), collection, doc))
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func embedding(values ...float32) []float32 {
	v := make([]float32, schema.EmbeddingDimensions)
	copy(v, values)
	return v
}

func outcomes(r reportResponse) map[string]string {
	m := make(map[string]string, len(r.Results))
	for _, res := range r.Results {
		m[res.Index] = res.Outcome
	}
	return m
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[healthResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"database": "ok", "indexes": "ok"}, resp.Checks)
}

func TestHealthCheck_MissingIndexesDegraded(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decode[healthResponse](t, rr).Status)
}

func TestListCollections(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/collections/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[collectionListResponse](t, rr)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, schema.Beans, resp.Items[0].Name)
	assert.Equal(t, schema.Concepts, resp.Items[1].Name)
	assert.Len(t, resp.Items[1].Indexes, 4)
}

func TestReconcileLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/collections/concepts/indexes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	for name, o := range outcomes(decode[reportResponse](t, rr)) {
		assert.Equal(t, "missing", o, name)
	}

	rr = env.do(t, http.MethodPost, "/collections/concepts/reconcile", "")
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[reportResponse](t, rr)
	assert.Equal(t, "concepts", report.Collection)
	require.Len(t, report.Results, 4)
	for _, res := range report.Results {
		assert.Equal(t, "created", res.Outcome, res.Index)
	}

	rr = env.do(t, http.MethodPost, "/collections/concepts/reconcile", "")
	require.Equal(t, http.StatusOK, rr.Code)
	for name, o := range outcomes(decode[reportResponse](t, rr)) {
		assert.Equal(t, "unchanged", o, name)
	}
}

func TestReconcile_DriftConflict(t *testing.T) {
	env := newTestEnv(t, false)
	stale, err := schema.NewScalar("beans_scalar_search",
		schema.ScalarKey{Field: schema.FieldUpdated, Direction: schema.Desc, Type: schema.Numeric})
	require.NoError(t, err)
	require.NoError(t, env.store.CreateIndex(context.Background(), schema.Beans, stale))

	rr := env.do(t, http.MethodPost, "/collections/beans/reconcile", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	resp := decode[driftResponse](t, rr)
	assert.Equal(t, codeDriftDetected, resp.Code)
	assert.Equal(t, schema.Beans, resp.Collection)
	require.Len(t, resp.Drifts, 1)
	assert.Equal(t, "beans_scalar_search", resp.Drifts[0].Index)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "created", outcomes(*resp.Report)["beans_text_search"])

	// inspection reports drift without failing
	rr = env.do(t, http.MethodGet, "/collections/beans/indexes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "drifted", outcomes(decode[reportResponse](t, rr))["beans_scalar_search"])
}

// failingStore fails CreateIndex for one index name.
type failingStore struct {
	*memory.Store
	failOn string
}

func (s failingStore) CreateIndex(ctx context.Context, collection string, spec schema.IndexSpec) error {
	if spec.Name() == s.failOn {
		return errors.New("connection reset")
	}
	return s.Store.CreateIndex(ctx, collection, spec)
}

func TestReconcile_StoreFailureKeepsPartialReport(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	registry := registryuc.New(schemarepo.New(store, "beansack:"))
	require.NoError(t, registry.Seed(ctx, schema.Beansack()...))
	indexes := indexuc.New(failingStore{Store: store, failOn: "beans_query_search"}, registry, nil)

	r := chi.NewRouter()
	NewServer(registry, indexes, searchuc.New(store, registry, searchuc.Options{}), healthuc.New(store, indexes), nil).Register(r)
	env := &testEnv{store: store, router: r}

	rr := env.do(t, http.MethodPost, "/collections/beans/reconcile", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	resp := decode[errorResponse](t, rr)
	assert.Equal(t, codeStoreUnavailable, resp.Code)
	require.NotNil(t, resp.Report)
	assert.Equal(t, map[string]string{
		"beans_category_search": "created",
		"beans_query_search":    "failed",
		"beans_scalar_search":   "skipped",
		"beans_text_search":     "skipped",
	}, outcomes(*resp.Report))
}

func TestReconcile_UnknownCollection(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/collections/films/reconcile", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeNotFound, decode[errorResponse](t, rr).Code)
}

func TestDropIndex(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodDelete, "/collections/concepts/indexes/concept_vector_search", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/collections/concepts/indexes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "missing", outcomes(decode[reportResponse](t, rr))["concept_vector_search"])

	rr = env.do(t, http.MethodDelete, "/collections/concepts/indexes/concept_vector_search", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSearch_ScalarFilter(t *testing.T) {
	env := newTestEnv(t, true)
	env.put(t, schema.Beans, "A", nil, map[string]any{"updated": 10, "kind": "news"})
	env.put(t, schema.Beans, "B", nil, map[string]any{"updated": 20, "kind": "blog"})

	rr := env.do(t, http.MethodPost, "/collections/beans/search",
		`{"filter":[{"field":"kind","op":"eq","value":"news"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[searchResponse](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "A", resp.Items[0].ID)
}

func TestSearch_VectorTopK(t *testing.T) {
	env := newTestEnv(t, true)
	env.put(t, schema.Beans, "A", map[string][]float32{"search_embeddings": embedding(1, 0)},
		map[string]any{"updated": 10})
	env.put(t, schema.Beans, "B", map[string][]float32{"search_embeddings": embedding(0, 1)},
		map[string]any{"updated": 20})

	q, err := json.Marshal(searchRequest{Vector: &vectorQuery{
		Field: "search_embeddings", Query: embedding(1, 0), TopK: 1,
	}})
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/collections/beans/search", string(q))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[searchResponse](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "A", resp.Items[0].ID)
	assert.InDelta(t, 1.0, resp.Items[0].VectorScore, 1e-6)
}

func TestSearch_Errors(t *testing.T) {
	env := newTestEnv(t, true)

	short, err := json.Marshal(searchRequest{Vector: &vectorQuery{Field: "search_embeddings", Query: []float32{1, 0}}})
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   errorCode
	}{
		{"malformed body", "/collections/beans/search", `{`, http.StatusBadRequest, codeBadRequest},
		{"empty request", "/collections/beans/search", `{}`, http.StatusBadRequest, codeValidationFailed},
		{"bad operator", "/collections/beans/search",
			`{"filter":[{"field":"kind","op":"gt","value":"news"}]}`, http.StatusBadRequest, codeValidationFailed},
		{"uncovered field", "/collections/beans/search",
			`{"filter":[{"field":"title","op":"eq","value":"x"}]}`, http.StatusBadRequest, codeValidationFailed},
		{"dimension mismatch", "/collections/beans/search", string(short),
			http.StatusBadRequest, codeDimensionMismatch},
		{"no vector index", "/collections/beans/search",
			`{"vector":{"field":"title","query":[1]}}`, http.StatusBadRequest, codeNoVectorIndex},
		{"unknown collection", "/collections/films/search", `{"text":"x"}`, http.StatusNotFound, codeNotFound},
		{"invalid collection name", "/collections/Bad%20Name/search", `{"text":"x"}`,
			http.StatusBadRequest, codeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCode, decode[errorResponse](t, rr).Code)
		})
	}
}

func TestRelatedConcepts(t *testing.T) {
	env := newTestEnv(t, true)
	env.put(t, schema.Concepts, "n1", nil,
		map[string]any{"updated": 5, "match_count": 1, "mapped_urls": []string{"A"}})
	env.put(t, schema.Concepts, "n2", nil,
		map[string]any{"updated": 7, "match_count": 3, "mapped_urls": []string{"A", "B"}})

	rr := env.do(t, http.MethodGet, "/collections/beans/A/concepts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[searchResponse](t, rr)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "n2", resp.Items[0].ID)
	assert.Equal(t, "n1", resp.Items[1].ID)

	rr = env.do(t, http.MethodGet, "/collections/beans/A/concepts?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[searchResponse](t, rr).Items, 1)

	rr = env.do(t, http.MethodGet, "/collections/beans/A/concepts?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRelatedBeans(t *testing.T) {
	env := newTestEnv(t, true)
	env.put(t, schema.Beans, "A", nil, map[string]any{"updated": 10, "kind": "news"})
	env.put(t, schema.Beans, "B", nil, map[string]any{"updated": 20, "kind": "blog"})
	env.put(t, schema.Concepts, "n1", nil,
		map[string]any{"updated": 5, "match_count": 1, "mapped_urls": []string{"A"}})
	env.put(t, schema.Concepts, "n2", nil,
		map[string]any{"updated": 7, "match_count": 3, "mapped_urls": []string{"A", "B", "gone"}})

	body := `{"filter":[{"field":"match_count","op":"gte","number":3}]}`
	rr := env.do(t, http.MethodPost, "/collections/concepts/beans", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[searchResponse](t, rr)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "B", resp.Items[0].ID)
	assert.Equal(t, "A", resp.Items[1].ID)

	rr = env.do(t, http.MethodPost, "/collections/concepts/beans?limit=1", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[searchResponse](t, rr).Items, 1)

	// the collection routes still resolve next to the static path
	rr = env.do(t, http.MethodPost, "/collections/concepts/search", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "n2", decode[searchResponse](t, rr).Items[0].ID)

	rr = env.do(t, http.MethodPost, "/collections/concepts/beans", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
