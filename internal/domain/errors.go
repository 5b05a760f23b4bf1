package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing collection, declaration or live index.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals a bad schema declaration or search request.
	ErrValidation = errors.New("validation failed")
	// ErrDriftDetected signals that a live index differs from its declaration.
	ErrDriftDetected = errors.New("drift detected")
	// ErrStoreUnavailable signals a failed store call. Callers may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDimensionMismatch signals a vector whose length differs from the declared dimensions.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNoVectorIndex signals a vector query on a field without a vector index.
	ErrNoVectorIndex = fmt.Errorf("no vector index: %w", ErrDimensionMismatch)
	// ErrNoTextIndex signals a text query on a collection without a text index.
	ErrNoTextIndex = errors.New("no text index")
	// ErrCancelled signals a cooperative abort through the caller's context.
	ErrCancelled = errors.New("cancelled")
	// ErrUnsupported signals an index kind the store backend cannot build.
	ErrUnsupported = errors.New("unsupported by store")
)

// DefaultKeyPrefix namespaces store keys when no prefix is configured.
const DefaultKeyPrefix = "beansack:"

// Drift describes one declared index whose live configuration differs.
type Drift struct {
	Index  string
	Reason string
}

// DriftError reports drifted indexes of a collection. It unwraps to ErrDriftDetected.
type DriftError struct {
	Collection string
	Drifts     []Drift
}

func (e *DriftError) Error() string {
	parts := make([]string, 0, len(e.Drifts))
	for _, d := range e.Drifts {
		parts = append(parts, d.Index+": "+d.Reason)
	}
	return fmt.Sprintf("%s in %s: %s", ErrDriftDetected.Error(), e.Collection, strings.Join(parts, "; "))
}

func (e *DriftError) Unwrap() error { return ErrDriftDetected }

// StoreError classifies an error returned by a store call.
// Context errors become ErrCancelled, everything else ErrStoreUnavailable.
// Errors already carrying a domain sentinel pass through unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	}
	for _, known := range []error{
		ErrNotFound, ErrDimensionMismatch, ErrUnsupported, ErrCancelled, ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Cancelled wraps a context error as ErrCancelled, or returns nil when ctx is live.
func Cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
