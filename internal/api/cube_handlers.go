package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
)

// cubeRequest names the cube a request runs against: a cube integration
// whose details carry the SQL and whose provider carries S3 credentials. A
// non-empty SQL overrides the integration's.
type cubeRequest struct {
	Integration *domain.Integration `json:"integration"`
	SQL         string              `json:"sql"`
}

func (c cubeRequest) resolve() (string, domain.S3ProviderDetails, error) {
	var creds domain.S3ProviderDetails
	cubeSQL := c.SQL
	if c.Integration != nil {
		details, err := c.Integration.ParseCubeIntegrationDetails()
		if err != nil {
			return "", creds, fmt.Errorf("invalid cube integration: %w", err)
		}
		if cubeSQL == "" {
			cubeSQL = details.SQL
		}
		if creds, err = c.Integration.ParseS3ProviderDetails(); err != nil {
			return "", creds, fmt.Errorf("invalid cube provider: %w", err)
		}
	}
	if cubeSQL == "" {
		return "", creds, errors.New("cube SQL is required")
	}
	return cubeSQL, creds, nil
}

type describeResponse struct {
	Columns []domain.ColumnMetadata `json:"columns"`
}

type valuesRequest struct {
	cubeRequest
	Column domain.ColumnMetadata `json:"column"`
	Search string                `json:"search"`
}

type valuesResponse struct {
	Values []string `json:"values"`
}

// DescribeCube returns the columns of a cube.
//
//	POST /api/cubes/describe
func (h *Handlers) DescribeCube(w http.ResponseWriter, r *http.Request) {
	if h.cubes == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "cube engine not configured")
		return
	}
	var req cubeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	cubeSQL, creds, err := req.resolve()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cols, err := h.cubes.Describe(r.Context(), creds, cubeSQL)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, describeResponse{Columns: cols})
}

// CubeValues lists the distinct values of one cube column.
//
//	POST /api/cubes/values
func (h *Handlers) CubeValues(w http.ResponseWriter, r *http.Request) {
	if h.cubes == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "cube engine not configured")
		return
	}
	var req valuesRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Column.ColumnName == "" {
		httputil.BadRequest(w, "column.column_name is required")
		return
	}
	cubeSQL, creds, err := req.resolve()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	values, err := h.cubes.FetchValues(r.Context(), creds, cubeSQL, req.Column, req.Search)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, valuesResponse{Values: values})
}
