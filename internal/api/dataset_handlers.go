package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaign-dashboard/internal/dataset"
	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
)

type datasetSQLResponse struct {
	SQL string `json:"sql"`
}

type parseDatasetRequest struct {
	SQL string `json:"sql"`
}

type parseDatasetResponse struct {
	Dataset *domain.Dataset `json:"dataset"`
}

type parseErrorDetails struct {
	Offset  int             `json:"offset"`
	Dataset *domain.Dataset `json:"dataset,omitempty"`
}

// BuildDatasetSQL compiles a dataset into its join query.
//
//	POST /api/datasets/sql
func (h *Handlers) BuildDatasetSQL(w http.ResponseWriter, r *http.Request) {
	var d domain.Dataset
	if !httputil.Decode(w, r, &d) {
		return
	}
	httputil.OK(w, datasetSQLResponse{SQL: dataset.BuildJoinSQL(d)})
}

// ParseDatasetSQL recovers a dataset from a generated join query. Input the
// parser does not understand answers 422 with the offset and the tables
// recovered so far.
//
//	POST /api/datasets/parse
func (h *Handlers) ParseDatasetSQL(w http.ResponseWriter, r *http.Request) {
	var req parseDatasetRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	d, err := dataset.FromSQL(req.SQL)
	if err != nil {
		var perr *dataset.ParseError
		if errors.As(err, &perr) {
			httputil.ErrorWithCode(w, http.StatusUnprocessableEntity, "parse_error", perr.Msg,
				parseErrorDetails{Offset: perr.Offset, Dataset: d})
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, parseDatasetResponse{Dataset: d})
}
