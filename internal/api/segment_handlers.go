package api

import (
	"fmt"
	"net/http"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/duckdb"
	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
	"github.com/ignite/campaign-dashboard/internal/segmentation"
)

type compileSegmentRequest struct {
	Columns []domain.ColumnMetadata `json:"columns"`
	Where   any                     `json:"where"`
}

type compileSegmentResponse struct {
	Filter    string `json:"filter"`
	Predicate string `json:"predicate"`
}

type populationRequest struct {
	cubeRequest
	Where       any    `json:"where"`
	IDFieldName string `json:"idFieldName"`
	Distinct    bool   `json:"distinct"`
}

type populationResponse struct {
	Population int64  `json:"population"`
	Predicate  string `json:"predicate"`
}

// CompileSegment compiles a JSON-logic rule against the given columns.
// filter is the raw compilation (empty for an empty rule); predicate is what
// a WHERE clause would use.
//
//	POST /api/segments/compile
func (h *Handlers) CompileSegment(w http.ResponseWriter, r *http.Request) {
	var req compileSegmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	filter := segmentation.CompileFilter(req.Columns, req.Where)
	httputil.OK(w, compileSegmentResponse{
		Filter:    filter,
		Predicate: segmentation.OrAlwaysTrue(filter),
	})
}

// SegmentPopulation counts the cube rows a segment rule selects.
//
//	POST /api/segments/population
func (h *Handlers) SegmentPopulation(w http.ResponseWriter, r *http.Request) {
	if h.cubes == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "cube engine not configured")
		return
	}
	var req populationRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	cubeSQL, creds, err := req.resolve()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	columns, err := h.cubes.Describe(ctx, creds, cubeSQL)
	if err != nil {
		httputil.InternalError(w, fmt.Errorf("describe cube: %w", err))
		return
	}
	predicate := segmentation.CompileFilter(columns, req.Where)
	n, err := h.cubes.CountPopulation(ctx, creds, duckdb.PopulationQuery{
		SQL:         cubeSQL,
		Where:       predicate,
		IDFieldName: req.IDFieldName,
		Distinct:    req.Distinct,
	})
	if err != nil {
		httputil.InternalError(w, fmt.Errorf("count population: %w", err))
		return
	}
	httputil.OK(w, populationResponse{Population: n, Predicate: segmentation.OrAlwaysTrue(predicate)})
}
