package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
	"github.com/kailas-cloud/beansack/internal/domain/search/mode"
	"github.com/kailas-cloud/beansack/internal/domain/search/result"
	"github.com/kailas-cloud/beansack/internal/logger"
	"github.com/kailas-cloud/beansack/internal/metrics"
)

// DefaultMaxCandidates caps the candidate set produced by the scalar pre-filter.
const DefaultMaxCandidates = 10000

// Options tunes the planner.
type Options struct {
	// Weights are the merge weights for hybrid searches without an override.
	Weights criteria.Weights
	// MaxCandidates caps each scalar sub-query.
	MaxCandidates int
}

// Service plans and executes hybrid searches over declared indexes.
type Service struct {
	store    Searcher
	registry Registry
	opts     Options
	tracer   trace.Tracer
}

// New creates a search service. Zero options fall back to the defaults.
func New(store Searcher, registry Registry, opts Options) *Service {
	if opts.Weights.Vector+opts.Weights.Text <= 0 {
		opts.Weights = DefaultWeights
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	return &Service{
		store:    store,
		registry: registry,
		opts:     opts,
		tracer:   otel.Tracer("github.com/kailas-cloud/beansack/internal/usecase/search"),
	}
}

// Search runs c against collection.
//
// Scalar conditions run first and produce the candidate set; an empty set
// short-circuits to an empty result. Vector and text sub-queries then run
// concurrently, restricted to the candidates, and their hits are merged.
// A search without vector or text returns the filter matches in the order
// of the covering scalar index.
func (s *Service) Search(ctx context.Context, collection string, c criteria.Criteria) (hits []result.Hit, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "search", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("mode", string(c.Mode())),
		attribute.Int("limit", c.Limit()),
	))
	defer func() {
		s.finish(ctx, span, collection, c.Mode(), start, len(hits), err)
	}()
	ctx = logger.With(ctx, zap.String("collection", collection))

	col, err := s.registry.Describe(collection)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", collection, err)
	}
	p, err := newPlan(col, &c)
	if err != nil {
		return nil, err
	}
	if err := domain.Cancelled(ctx); err != nil {
		return nil, err
	}

	var candidates []db.Hit
	restrict := filter.Expression{}
	if len(p.groups) > 0 {
		candidates, err = s.prefilter(ctx, p)
		if err != nil {
			return nil, err
		}
		metrics.SearchCandidates.WithLabelValues(collection).Observe(float64(len(candidates)))
		if len(candidates) == 0 {
			return []result.Hit{}, nil
		}
		ids := make([]string, len(candidates))
		for i, h := range candidates {
			ids[i] = h.ID
		}
		restrict = restrict.And(filter.NewIDs(ids...))
	}

	if p.mode == mode.Scalar {
		return scalarHits(candidates, c.Limit()), nil
	}

	var vectorHits, textHits []db.Hit
	g, gctx := errgroup.WithContext(ctx)
	if p.hasVector {
		v := c.Vector()
		g.Go(func() error {
			ctx, span := s.tracer.Start(gctx, "search.vector", trace.WithAttributes(
				attribute.String("index", p.vector.Name()),
				attribute.Int("top_k", v.TopK),
			))
			defer span.End()

			h, err := s.store.VectorQuery(ctx, &db.VectorQuery{
				Collection:   p.collection,
				Index:        p.vector.Name(),
				Field:        p.vector.Field(),
				Vector:       v.Query,
				TopK:         v.TopK,
				Similarity:   p.vector.Similarity(),
				Filter:       restrict,
				UpdatedField: p.updatedField,
			})
			if err != nil {
				recordError(span, err)
				return domain.StoreError("vector query", err)
			}
			vectorHits = aboveMinScore(h, v.MinScore)
			span.SetAttributes(attribute.Int("below_min_score", len(h)-len(vectorHits)))
			return nil
		})
	}
	if p.hasText {
		g.Go(func() error {
			ctx, span := s.tracer.Start(gctx, "search.text", trace.WithAttributes(
				attribute.String("index", p.text.Name()),
			))
			defer span.End()

			h, err := s.store.TextQuery(ctx, &db.TextQuery{
				Collection:   p.collection,
				Index:        p.text.Name(),
				Query:        c.Text(),
				TopK:         textTopK(&c),
				Filter:       restrict,
				UpdatedField: p.updatedField,
			})
			if err != nil {
				recordError(span, err)
				return domain.StoreError("text query", err)
			}
			textHits = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := domain.Cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	_, mspan := s.tracer.Start(ctx, "search.merge")
	hits = merge(vectorHits, textHits, s.weights(p, &c), c.Limit())
	mspan.SetAttributes(attribute.Int("vector_hits", len(vectorHits)), attribute.Int("text_hits", len(textHits)))
	mspan.End()

	if err := domain.Cancelled(ctx); err != nil {
		return nil, err
	}
	return hits, nil
}

// prefilter runs one scalar sub-query per group and intersects the id sets.
// The result keeps the order of the first group's index.
func (s *Service) prefilter(ctx context.Context, p *plan) ([]db.Hit, error) {
	ctx, span := s.tracer.Start(ctx, "search.scalar", trace.WithAttributes(
		attribute.Int("groups", len(p.groups)),
	))
	defer span.End()

	var base []db.Hit
	for i, grp := range p.groups {
		hits, err := s.store.ScalarQuery(ctx, &db.ScalarQuery{
			Collection:   p.collection,
			Index:        grp.index.Name(),
			Filter:       grp.filter,
			OrderBy:      grp.index.ScalarKeys(),
			Limit:        s.opts.MaxCandidates,
			UpdatedField: p.updatedField,
		})
		if err != nil {
			recordError(span, err)
			return nil, domain.StoreError("scalar query", err)
		}
		if len(hits) >= s.opts.MaxCandidates {
			logger.FromContext(ctx).Warn("Candidate set truncated",
				zap.String("collection", p.collection),
				zap.String("index", grp.index.Name()),
				zap.Int("max_candidates", s.opts.MaxCandidates),
			)
		}

		if i == 0 {
			base = hits
		} else {
			keep := make(map[string]struct{}, len(hits))
			for _, h := range hits {
				keep[h.ID] = struct{}{}
			}
			base = intersect(base, keep)
		}
		if len(base) == 0 {
			return nil, nil
		}
	}
	span.SetAttributes(attribute.Int("candidates", len(base)))
	return base, nil
}

// aboveMinScore keeps the vector hits whose similarity reaches minScore.
func aboveMinScore(hits []db.Hit, minScore float64) []db.Hit {
	if minScore <= 0 {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	return out
}

func intersect(hits []db.Hit, keep map[string]struct{}) []db.Hit {
	out := hits[:0:0]
	for _, h := range hits {
		if _, ok := keep[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

// scalarHits converts filter matches to results, keeping store order.
func scalarHits(hits []db.Hit, limit int) []result.Hit {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]result.Hit, len(hits))
	for i, h := range hits {
		out[i] = result.New(h.ID, 1, h.Updated, 0, 0)
	}
	return out
}

// textTopK sizes the text sub-query like the vector one so both sources
// contribute the same number of hits to the merge.
func textTopK(c *criteria.Criteria) int {
	if v := c.Vector(); v != nil {
		return v.TopK
	}
	return c.Limit()
}

func (s *Service) weights(p *plan, c *criteria.Criteria) criteria.Weights {
	switch {
	case p.hasVector && p.hasText:
		if w := c.Weights(); w != nil {
			return *w
		}
		return s.opts.Weights
	case p.hasVector:
		return criteria.Weights{Vector: 1}
	default:
		return criteria.Weights{Text: 1}
	}
}

func (s *Service) finish(
	ctx context.Context, span trace.Span, collection string, m mode.Mode, start time.Time, n int, err error,
) {
	defer span.End()

	status := "ok"
	switch {
	case errors.Is(err, domain.ErrCancelled):
		status = "cancelled"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = "store_error"
	case err != nil:
		status = "invalid"
	}
	metrics.SearchRequestsTotal.WithLabelValues(collection, string(m), status).Inc()
	metrics.SearchDuration.WithLabelValues(collection, string(m)).Observe(time.Since(start).Seconds())

	if err != nil {
		recordError(span, err)
		logger.FromContext(ctx).Debug("Search failed",
			zap.String("collection", collection), zap.String("mode", string(m)), zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("results", n))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Related returns the concepts linked to any of beanIDs through mapped_urls,
// ordered by the concepts' recency index. Links to unknown beans are ignored.
func (s *Service) Related(ctx context.Context, beanIDs []string, limit int) ([]result.Hit, error) {
	if len(beanIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one bean id is required", domain.ErrValidation)
	}
	if len(beanIDs) > criteria.MaxLimit {
		return nil, fmt.Errorf("%w: too many bean ids (max %d)", domain.ErrValidation, criteria.MaxLimit)
	}
	cond, err := filter.NewIn(schema.FieldMappedURLs, beanIDs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	f, err := filter.New(cond)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	c, err := criteria.New(nil, "", f, limit, nil)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "search.related", trace.WithAttributes(
		attribute.Int("beans", len(beanIDs)),
	))
	defer span.End()

	col, err := s.registry.Describe(schema.Concepts)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", schema.Concepts, err)
	}
	p, err := newPlan(col, &c)
	if err != nil {
		return nil, err
	}
	linked, err := s.prefilter(ctx, p)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if len(linked) == 0 {
		return []result.Hit{}, nil
	}

	order, ok := col.ScalarFor(schema.FieldUpdated)
	if !ok {
		return scalarHits(linked, c.Limit()), nil
	}
	ids := make([]string, len(linked))
	for i, h := range linked {
		ids[i] = h.ID
	}
	hits, err := s.store.ScalarQuery(ctx, &db.ScalarQuery{
		Collection:   schema.Concepts,
		Index:        order.Name(),
		Filter:       filter.Expression{}.And(filter.NewIDs(ids...)),
		OrderBy:      order.ScalarKeys(),
		Limit:        c.Limit(),
		UpdatedField: p.updatedField,
	})
	if err != nil {
		recordError(span, err)
		return nil, domain.StoreError("scalar query", err)
	}
	return scalarHits(hits, c.Limit()), nil
}

// RelatedBeans runs c against the concepts collection, follows the matched
// concepts' mapped_urls and returns the linked beans, most recent first.
// Links to unknown beans are ignored.
func (s *Service) RelatedBeans(ctx context.Context, c criteria.Criteria, limit int) ([]result.Hit, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}
	if limit == 0 {
		limit = criteria.DefaultLimit
	}
	limit = min(limit, criteria.MaxLimit)

	ctx, span := s.tracer.Start(ctx, "search.related_beans", trace.WithAttributes(
		attribute.String("mode", string(c.Mode())),
		attribute.Int("limit", limit),
	))
	defer span.End()

	concepts, err := s.Search(ctx, schema.Concepts, c)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if len(concepts) == 0 {
		return []result.Hit{}, nil
	}

	links, err := s.coveringIndex(schema.Concepts, schema.FieldMappedURLs)
	if err != nil {
		return nil, err
	}
	order, err := s.coveringIndex(schema.Beans, schema.FieldUpdated)
	if err != nil {
		return nil, err
	}

	conceptIDs := make([]string, len(concepts))
	for i, h := range concepts {
		conceptIDs[i] = h.ID()
	}
	linked, err := s.store.ScalarQuery(ctx, &db.ScalarQuery{
		Collection: schema.Concepts,
		Index:      links.Name(),
		Filter:     filter.Expression{}.And(filter.NewIDs(conceptIDs...)),
		OrderBy:    links.ScalarKeys(),
		Limit:      len(conceptIDs),
		TagField:   schema.FieldMappedURLs,
	})
	if err != nil {
		recordError(span, err)
		return nil, domain.StoreError("scalar query", err)
	}

	seen := make(map[string]struct{})
	var beanIDs []string
	for _, h := range linked {
		for _, id := range h.Tags {
			if _, dup := seen[id]; !dup && id != "" {
				seen[id] = struct{}{}
				beanIDs = append(beanIDs, id)
			}
		}
	}
	span.SetAttributes(attribute.Int("concepts", len(concepts)), attribute.Int("beans", len(beanIDs)))
	if len(beanIDs) == 0 {
		return []result.Hit{}, nil
	}

	hits, err := s.store.ScalarQuery(ctx, &db.ScalarQuery{
		Collection:   schema.Beans,
		Index:        order.Name(),
		Filter:       filter.Expression{}.And(filter.NewIDs(beanIDs...)),
		OrderBy:      order.ScalarKeys(),
		Limit:        limit,
		UpdatedField: schema.FieldUpdated,
	})
	if err != nil {
		recordError(span, err)
		return nil, domain.StoreError("scalar query", err)
	}
	if err := domain.Cancelled(ctx); err != nil {
		return nil, err
	}
	return scalarHits(hits, limit), nil
}

// coveringIndex returns the first scalar index of collection covering field.
func (s *Service) coveringIndex(collection, field string) (schema.IndexSpec, error) {
	col, err := s.registry.Describe(collection)
	if err != nil {
		return schema.IndexSpec{}, fmt.Errorf("describe %s: %w", collection, err)
	}
	spec, ok := col.ScalarFor(field)
	if !ok {
		return schema.IndexSpec{}, fmt.Errorf("%w: no scalar index of %s covers %q",
			domain.ErrValidation, collection, field)
	}
	return spec, nil
}
