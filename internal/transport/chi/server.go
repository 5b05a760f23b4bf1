package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/beansack/internal/usecase/health"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
	registryuc "github.com/kailas-cloud/beansack/internal/usecase/registry"
	searchuc "github.com/kailas-cloud/beansack/internal/usecase/search"
)

// statusClientClosedRequest is the nginx convention for a request the client abandoned.
const statusClientClosedRequest = 499

// errorHandler tries to handle a domain error. Returns true if handled.
// resp arrives with Message and Report set; the handler picks the code.
type errorHandler func(w http.ResponseWriter, err error, resp errorResponse) bool

// Server serves the operations API over the registry, index manager and search services.
type Server struct {
	registry      *registryuc.Registry
	indexes       *indexuc.Manager
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
	searchTimeout time.Duration
}

// NewServer creates an HTTP API server.
func NewServer(
	registry *registryuc.Registry,
	indexes *indexuc.Manager,
	search *searchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		indexes:  indexes,
		search:   search,
		health:   health,
		logger:   logger,
	}
	// order matters: ErrNoVectorIndex also matches ErrDimensionMismatch
	s.errorHandlers = []errorHandler{
		driftHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrNoVectorIndex, http.StatusBadRequest, codeNoVectorIndex),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrNoTextIndex, http.StatusBadRequest, codeNoTextIndex),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnsupported, http.StatusNotImplemented, codeUnsupported),
		sentinelHandler(domain.ErrCancelled, statusClientClosedRequest, codeCancelled),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable),
	}
	return s
}

// WithSearchTimeout bounds every search and related-concepts request. Zero disables the bound.
func (s *Server) WithSearchTimeout(d time.Duration) *Server {
	s.searchTimeout = d
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/collections", func(r chi.Router) {
		r.Get("/", s.ListCollections)
		r.Get("/beans/{id}/concepts", s.RelatedConcepts)
		r.Post("/concepts/beans", s.RelatedBeans)
		r.Route("/{collection}", func(r chi.Router) {
			r.Get("/indexes", s.ListIndexes)
			r.Delete("/indexes/{index}", s.DropIndex)
			r.Post("/reconcile", s.Reconcile)
			r.Post("/search", s.Search)
		})
	})
}

// ListCollections handles GET /collections.
func (s *Server) ListCollections(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.Collections()
	items := make([]collectionResponse, 0, len(names))
	for _, name := range names {
		col, err := s.registry.Describe(name)
		if err != nil {
			// retired between Collections and Describe
			continue
		}
		items = append(items, collectionToResponse(col))
	}
	writeJSON(w, http.StatusOK, collectionListResponse{Items: items})
}

// ListIndexes handles GET /collections/{collection}/indexes.
// It compares declarations with the store without creating anything.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}

	report, err := s.indexes.Inspect(r.Context(), collection)
	// drift is part of the answer here, not a failure
	if err != nil && !errors.Is(err, domain.ErrDriftDetected) {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse(report))
}

// Reconcile handles POST /collections/{collection}/reconcile.
func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}

	report, err := s.indexes.Reconcile(r.Context(), collection)
	if err != nil {
		resp := errorResponse{Message: safeDomainMessage(err)}
		// indexes created before a failure stay created
		if len(report.Results) > 0 {
			body := reportToResponse(report)
			resp.Report = &body
		}
		s.handleError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse(report))
}

// DropIndex handles DELETE /collections/{collection}/indexes/{index}.
func (s *Server) DropIndex(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}
	var index string
	if err := bindPath("index", chi.URLParam(r, "index"), &index); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid index name")
		return
	}

	if err := s.indexes.Drop(r.Context(), collection, index); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /collections/{collection}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c, err := searchCriteriaFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	ctx, cancel := s.searchContext(r.Context())
	defer cancel()

	hits, err := s.search.Search(ctx, collection, c)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hitsToResponse(hits))
}

// RelatedConcepts handles GET /collections/beans/{id}/concepts.
func (s *Server) RelatedConcepts(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := bindPath("id", chi.URLParam(r, "id"), &id); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid bean id")
		return
	}

	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid limit")
		return
	}

	ctx, cancel := s.searchContext(r.Context())
	defer cancel()

	hits, err := s.search.Related(ctx, []string{id}, derefInt(limit))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hitsToResponse(hits))
}

// RelatedBeans handles POST /collections/concepts/beans.
// The body selects concepts like a search; limit bounds the returned beans.
func (s *Server) RelatedBeans(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid limit")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	c, err := searchCriteriaFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	ctx, cancel := s.searchContext(r.Context())
	defer cancel()

	hits, err := s.search.RelatedBeans(ctx, c, derefInt(limit))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hitsToResponse(hits))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.searchTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.searchTimeout)
}

func (s *Server) collectionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var collection string
	if err := bindPath("collection", chi.URLParam(r, "collection"), &collection); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid collection name")
		return "", false
	}
	if err := schema.ValidateCollectionName(collection); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return "", false
	}
	return collection, true
}

func bindPath(name, value string, dest *string) error {
	return runtime.BindStyledParameterWithOptions("simple", name, value, dest, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation messages carry no internals and are returned whole.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrDriftDetected,
		domain.ErrNoVectorIndex,
		domain.ErrDimensionMismatch,
		domain.ErrNoTextIndex,
		domain.ErrUnsupported,
		domain.ErrCancelled,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, resp errorResponse) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		resp.Code = code
		writeJSON(w, status, resp)
		return true
	}
}

// driftHandler handles ErrDriftDetected and lists the drifted indexes.
func driftHandler(w http.ResponseWriter, err error, er errorResponse) bool {
	if !errors.Is(err, domain.ErrDriftDetected) {
		return false
	}
	resp := driftResponse{Code: codeDriftDetected, Message: er.Message, Drifts: []driftItem{}, Report: er.Report}
	var de *domain.DriftError
	if errors.As(err, &de) {
		resp.Collection = de.Collection
		for _, d := range de.Drifts {
			resp.Drifts = append(resp.Drifts, driftItem{Index: d.Index, Reason: d.Reason})
		}
	}
	writeJSON(w, http.StatusConflict, resp)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.handleError(w, err, errorResponse{Message: safeDomainMessage(err)})
}

func (s *Server) handleError(w http.ResponseWriter, err error, resp errorResponse) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err, resp) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func hitsToResponse(hits []result.Hit) searchResponse {
	items := make([]searchHit, len(hits))
	for i, h := range hits {
		items[i] = searchHit{
			ID:          h.ID(),
			Score:       h.Score(),
			VectorScore: h.VectorScore(),
			TextScore:   h.TextScore(),
			Updated:     h.Updated(),
		}
	}
	return searchResponse{Items: items}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
