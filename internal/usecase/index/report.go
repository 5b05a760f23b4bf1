package index

import (
	"slices"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
)

// Outcome is what reconciliation did (or would do) with one declared index.
type Outcome string

// Reconcile outcomes.
const (
	Created   Outcome = "created"
	Unchanged Outcome = "unchanged"
	Drifted   Outcome = "drifted"
	Failed    Outcome = "failed"
	Skipped   Outcome = "skipped"
	// Missing is reported by Inspect for an index Reconcile would create.
	Missing Outcome = "missing"
)

// Result is the outcome for one declared index.
type Result struct {
	Index   string
	Kind    schema.Kind
	Outcome Outcome
	Reason  string `json:",omitempty"`
}

// Report summarizes one reconcile run, in declaration order.
type Report struct {
	Collection string
	Results    []Result
	// Unmanaged lists live indexes with no declaration. They are never touched.
	Unmanaged []string
}

// Count returns how many indexes ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Drifts returns the drifted indexes.
func (r Report) Drifts() []domain.Drift {
	var out []domain.Drift
	for _, res := range r.Results {
		if res.Outcome == Drifted {
			out = append(out, domain.Drift{Index: res.Index, Reason: res.Reason})
		}
	}
	return out
}

func (r Report) clone() Report {
	r.Results = slices.Clone(r.Results)
	r.Unmanaged = slices.Clone(r.Unmanaged)
	return r
}

// skipRest marks every spec from i onward as skipped.
func (r *Report) skipRest(specs []schema.IndexSpec, i int, reason string) {
	for _, s := range specs[i:] {
		r.Results = append(r.Results, Result{Index: s.Name(), Kind: s.Kind(), Outcome: Skipped, Reason: reason})
	}
}
