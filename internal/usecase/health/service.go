package health

import (
	"context"
	"errors"

	"github.com/kailas-cloud/beansack/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckMissing indicates declared indexes absent from the store.
	CheckMissing CheckResult = "missing"
	// CheckDrifted indicates live indexes that differ from their declaration.
	CheckDrifted CheckResult = "drifted"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	indexes IndexVerifier
}

// New creates a Service. indexes can be nil.
func New(db DBPinger, indexes IndexVerifier) *Service {
	return &Service{db: db, indexes: indexes}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		return Report{Status: Unhealthy, Checks: checks}
	}
	checks["database"] = CheckOK

	// missing or drifted indexes degrade search but do not stop it
	status := Healthy
	if s.indexes != nil {
		checks["indexes"] = indexCheck(s.indexes.Verify(ctx))
		if checks["indexes"] != CheckOK {
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}

func indexCheck(err error) CheckResult {
	switch {
	case err == nil:
		return CheckOK
	case errors.Is(err, domain.ErrDriftDetected):
		return CheckDrifted
	case errors.Is(err, domain.ErrNotFound):
		return CheckMissing
	default:
		return CheckError
	}
}
