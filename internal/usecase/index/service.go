package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/metrics"
)

// Manager brings live indexes in line with the registry.
// It creates what is missing and reports what differs; it never alters or
// drops an existing index on its own.
type Manager struct {
	store      Store
	registry   Registry
	logger     *zap.Logger
	flight     singleflight.Group
	runTimeout time.Duration
}

// DefaultRunTimeout bounds a shared reconcile run.
const DefaultRunTimeout = 2 * time.Minute

// New creates an index manager.
func New(store Store, registry Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, registry: registry, logger: logger, runTimeout: DefaultRunTimeout}
}

// WithRunTimeout bounds each shared reconcile run. Non-positive values keep the default.
func (m *Manager) WithRunTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.runTimeout = d
	}
	return m
}

// Reconcile creates every declared index of collection that is absent from the store.
//
// Concurrent calls for the same collection share one run. The run is detached
// from every caller's cancellation and bounded by the run timeout instead; a
// caller whose own context ends gets ErrCancelled while the run goes on for the others.
// When indexes drifted and nothing failed, the report is returned with a *domain.DriftError.
func (m *Manager) Reconcile(ctx context.Context, collection string) (Report, error) {
	col, err := m.registry.Describe(collection)
	if err != nil {
		return Report{Collection: collection}, fmt.Errorf("describe %s: %w", collection, err)
	}
	if err := domain.Cancelled(ctx); err != nil {
		return Report{Collection: collection}, err
	}

	runCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(collection, func() (any, error) {
		runCtx, cancel := context.WithTimeout(runCtx, m.runTimeout)
		defer cancel()
		return m.reconcile(runCtx, col, false)
	})

	select {
	case <-ctx.Done():
		return Report{Collection: collection}, domain.Cancelled(ctx)
	case res := <-ch:
		report, _ := res.Val.(Report)
		return report.clone(), res.Err
	}
}

// Inspect compares declared and live indexes without creating anything.
// Absent indexes are reported as Missing.
func (m *Manager) Inspect(ctx context.Context, collection string) (Report, error) {
	col, err := m.registry.Describe(collection)
	if err != nil {
		return Report{Collection: collection}, fmt.Errorf("describe %s: %w", collection, err)
	}
	return m.reconcile(ctx, col, true)
}

// Verify inspects every declared collection and fails when an index is
// missing or drifted.
func (m *Manager) Verify(ctx context.Context) error {
	for _, name := range m.registry.Collections() {
		report, err := m.Inspect(ctx, name)
		if err != nil {
			return err
		}
		if n := report.Count(Missing); n > 0 {
			return fmt.Errorf("%s: %d declared indexes missing: %w", name, n, domain.ErrNotFound)
		}
	}
	return nil
}

// ReconcileAll reconciles every declared collection in name order.
// Errors are joined; a cancelled context stops the remaining collections.
func (m *Manager) ReconcileAll(ctx context.Context) ([]Report, error) {
	var (
		reports []Report
		errs    []error
	)
	for _, name := range m.registry.Collections() {
		report, err := m.Reconcile(ctx, name)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, domain.ErrCancelled) {
				break
			}
		}
	}
	return reports, errors.Join(errs...)
}

// Drop removes a live index. The declaration is kept, so the next Reconcile
// recreates the index unless it is retired first.
func (m *Manager) Drop(ctx context.Context, collection, name string) error {
	if err := m.store.DropIndex(ctx, collection, name); err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("index %q in %s: %w", name, collection, domain.ErrNotFound)
		}
		metrics.IndexOperationsTotal.WithLabelValues(collection, "", "drop_failed").Inc()
		return domain.StoreError("drop index", err)
	}
	metrics.IndexOperationsTotal.WithLabelValues(collection, "", "dropped").Inc()
	m.logger.Info("Index dropped", zap.String("collection", collection), zap.String("index", name))
	return nil
}

func (m *Manager) reconcile(ctx context.Context, col schema.Collection, dryRun bool) (Report, error) {
	report := Report{Collection: col.Name()}
	log := m.logger.With(zap.String("collection", col.Name()))

	live, err := m.store.ListIndexes(ctx, col.Name())
	if err != nil {
		err = domain.StoreError("list indexes", err)
		m.observe(report, err, dryRun)
		return report, err
	}

	liveByName := make(map[string]db.LiveIndex, len(live))
	for _, l := range live {
		liveByName[l.Name] = l
	}
	specs := col.Specs()
	for _, l := range live {
		if _, ok := col.Index(l.Name); !ok {
			report.Unmanaged = append(report.Unmanaged, l.Name)
		}
	}

	for i, spec := range specs {
		if err := domain.Cancelled(ctx); err != nil {
			report.skipRest(specs, i, "cancelled")
			m.observe(report, err, dryRun)
			return report, err
		}

		res := Result{Index: spec.Name(), Kind: spec.Kind()}
		l, exists := liveByName[spec.Name()]
		switch {
		case exists && spec.Equal(l.Spec):
			res.Outcome = Unchanged
		case exists:
			res.Outcome = Drifted
			res.Reason = driftReason(spec, l.Spec)
		case spec.Kind() == schema.KindText && activeText(live, col) != "":
			res.Outcome = Drifted
			res.Reason = fmt.Sprintf("text index %q is active", activeText(live, col))
		case dryRun:
			res.Outcome = Missing
		default:
			if err := m.store.CreateIndex(ctx, col.Name(), spec); err != nil {
				err = domain.StoreError("create index "+spec.Name(), err)
				res.Outcome = Failed
				res.Reason = err.Error()
				report.Results = append(report.Results, res)
				report.skipRest(specs, i+1, fmt.Sprintf("%s failed", spec.Name()))
				log.Error("Index creation failed", zap.String("index", spec.Name()), zap.Error(err))
				m.observe(report, err, dryRun)
				return report, err
			}
			res.Outcome = Created
			log.Info("Index created", zap.String("index", spec.Name()), zap.String("kind", string(spec.Kind())))
		}
		if res.Outcome == Drifted {
			log.Warn("Index drifted", zap.String("index", spec.Name()), zap.String("reason", res.Reason))
		}
		report.Results = append(report.Results, res)
	}

	var result error
	if drifts := report.Drifts(); len(drifts) > 0 {
		result = &domain.DriftError{Collection: col.Name(), Drifts: drifts}
	}
	m.observe(report, result, dryRun)
	return report, result
}

// activeText returns the name of a live text index that is not declared, if any.
// A collection has at most one active text index.
func activeText(live []db.LiveIndex, col schema.Collection) string {
	for _, l := range live {
		if l.Spec.Kind() != schema.KindText {
			continue
		}
		if _, declared := col.Index(l.Name); !declared {
			return l.Name
		}
	}
	return ""
}

func driftReason(declared, live schema.IndexSpec) string {
	if live.Name() == "" {
		return "live index has no recorded definition"
	}
	return strings.Join(declared.Diff(live), "; ")
}

func (m *Manager) observe(report Report, err error, dryRun bool) {
	if dryRun {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrCancelled):
		outcome = "cancelled"
	case errors.Is(err, domain.ErrDriftDetected):
		outcome = "drift"
	case err != nil:
		outcome = "failed"
	}
	metrics.ReconcileTotal.WithLabelValues(report.Collection, outcome).Inc()
	metrics.DriftedIndexes.WithLabelValues(report.Collection).Set(float64(report.Count(Drifted)))
	for _, res := range report.Results {
		metrics.IndexOperationsTotal.WithLabelValues(report.Collection, string(res.Kind), string(res.Outcome)).Inc()
	}
}
