package chi

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
)

type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeUnauthorized      errorCode = "unauthorized"
	codeValidationFailed  errorCode = "validation_failed"
	codeNotFound          errorCode = "not_found"
	codeDriftDetected     errorCode = "drift_detected"
	codeDimensionMismatch errorCode = "dimension_mismatch"
	codeNoVectorIndex     errorCode = "no_vector_index"
	codeNoTextIndex       errorCode = "no_text_index"
	codeUnsupported       errorCode = "unsupported"
	codeCancelled         errorCode = "cancelled"
	codeStoreUnavailable  errorCode = "store_unavailable"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
	// Report holds what a failed reconcile managed before it stopped.
	Report *reportResponse `json:"report,omitempty"`
}

type driftItem struct {
	Index  string `json:"index"`
	Reason string `json:"reason"`
}

type driftResponse struct {
	Code       errorCode       `json:"code"`
	Message    string          `json:"message"`
	Collection string          `json:"collection,omitempty"`
	Drifts     []driftItem     `json:"drifts"`
	Report     *reportResponse `json:"report,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type collectionResponse struct {
	Name    string             `json:"name"`
	Indexes []schema.IndexSpec `json:"indexes"`
}

type collectionListResponse struct {
	Items []collectionResponse `json:"items"`
}

type indexResult struct {
	Index   string `json:"index"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type reportResponse struct {
	Collection string        `json:"collection"`
	Results    []indexResult `json:"results"`
	Unmanaged  []string      `json:"unmanaged"`
}

type vectorQuery struct {
	Field    string    `json:"field"`
	Query    []float32 `json:"query"`
	TopK     int       `json:"top_k,omitempty"`
	MinScore float64   `json:"min_score,omitempty"`
}

// filterCondition is one condition of a search filter.
// Tag conditions set value, "in" sets values, numeric conditions set number.
type filterCondition struct {
	Field  string   `json:"field"`
	Op     string   `json:"op"`
	Value  *string  `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
	Number *float64 `json:"number,omitempty"`
}

type searchWeights struct {
	Vector float64 `json:"vector"`
	Text   float64 `json:"text"`
}

type searchRequest struct {
	Vector  *vectorQuery      `json:"vector,omitempty"`
	Text    string            `json:"text,omitempty"`
	Filter  []filterCondition `json:"filter,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Weights *searchWeights    `json:"weights,omitempty"`
}

type searchHit struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`
	Updated     int64   `json:"updated,omitempty"`
}

type searchResponse struct {
	Items []searchHit `json:"items"`
}

func collectionToResponse(c schema.Collection) collectionResponse {
	return collectionResponse{Name: c.Name(), Indexes: c.Specs()}
}

func reportToResponse(r indexuc.Report) reportResponse {
	resp := reportResponse{
		Collection: r.Collection,
		Results:    make([]indexResult, len(r.Results)),
		Unmanaged:  r.Unmanaged,
	}
	if resp.Unmanaged == nil {
		resp.Unmanaged = []string{}
	}
	for i, res := range r.Results {
		resp.Results[i] = indexResult{
			Index:   res.Index,
			Kind:    string(res.Kind),
			Outcome: string(res.Outcome),
			Reason:  res.Reason,
		}
	}
	return resp
}

func searchCriteriaFromRequest(req searchRequest) (criteria.Criteria, error) {
	f, err := filterFromRequest(req.Filter)
	if err != nil {
		return criteria.Criteria{}, err
	}

	var vec *criteria.Vector
	if req.Vector != nil {
		vec = &criteria.Vector{
			Field:    req.Vector.Field,
			Query:    req.Vector.Query,
			TopK:     req.Vector.TopK,
			MinScore: req.Vector.MinScore,
		}
	}
	var w *criteria.Weights
	if req.Weights != nil {
		w = &criteria.Weights{Vector: req.Weights.Vector, Text: req.Weights.Text}
	}

	return criteria.New(vec, req.Text, f, req.Limit, w)
}

func filterFromRequest(cs []filterCondition) (filter.Expression, error) {
	if len(cs) == 0 {
		return filter.Expression{}, nil
	}
	conds := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromRequest(c)
		if err != nil {
			return filter.Expression{}, err
		}
		conds = append(conds, cond)
	}
	return filter.New(conds...)
}

func conditionFromRequest(c filterCondition) (filter.Condition, error) {
	op := filter.Op(c.Op)
	switch {
	case op == filter.OpIn:
		return filter.NewIn(c.Field, c.Values...)
	case c.Number != nil && c.Value != nil:
		return filter.Condition{}, fmt.Errorf("filter condition for %q must have value or number, not both", c.Field)
	case c.Number != nil:
		return filter.NewNumeric(c.Field, op, *c.Number)
	case c.Value != nil:
		return filter.NewTag(c.Field, op, *c.Value)
	}
	return filter.Condition{}, errors.New("filter condition must have either value or number")
}
