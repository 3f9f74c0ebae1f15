// Package api exposes the SMS job pipeline over HTTP: dataset and segment
// compilation helpers for the dashboard editor, cube introspection, and job
// preview and processing.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/duckdb"
	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
	"github.com/ignite/campaign-dashboard/internal/service/job"
	"github.com/ignite/campaign-dashboard/internal/smsjob"
	"github.com/ignite/campaign-dashboard/internal/templating"
)

// JobService previews and runs SMS jobs.
type JobService interface {
	GenerateJobSQL(ctx context.Context, id string) (*job.JobSQL, error)
	ProcessJob(ctx context.Context, id string) (*job.RunResult, error)
	ProcessAll(ctx context.Context) ([]job.RunResult, error)
}

// CubeEngine answers introspection queries against cube SQL.
type CubeEngine interface {
	Describe(ctx context.Context, creds domain.S3ProviderDetails, cubeSQL string) ([]domain.ColumnMetadata, error)
	FetchValues(ctx context.Context, creds domain.S3ProviderDetails, cubeSQL string, column domain.ColumnMetadata, search string) ([]string, error)
	CountPopulation(ctx context.Context, creds domain.S3ProviderDetails, q duckdb.PopulationQuery) (int64, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	jobs      JobService
	cubes     CubeEngine
	templates *templating.Engine
}

// NewHandlers creates a new Handlers instance. Either dependency may be nil;
// the routes that need it then answer 503.
func NewHandlers(jobs JobService, cubes CubeEngine) *Handlers {
	return &Handlers{
		jobs:      jobs,
		cubes:     cubes,
		templates: templating.NewEngine(),
	}
}

var errUnavailable = errors.New("service unavailable")

// invalidJobErrors are the job configuration problems reported as 400.
var invalidJobErrors = []error{
	job.ErrNotSMSJob,
	job.ErrMissingCubeIntegration,
	smsjob.ErrMissingPlacement,
	smsjob.ErrMissingContentType,
	smsjob.ErrMissingTemplate,
	smsjob.ErrMissingRecipientColumn,
	smsjob.ErrMissingCubeSQL,
	smsjob.ErrMissingSender,
	smsjob.ErrNoAdSets,
	smsjob.ErrInvalidSegment,
}

// respondJobError maps job service errors to status codes.
func respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrNotFound):
		httputil.NotFound(w, err.Error())
		return
	case errors.Is(err, job.ErrLocked):
		httputil.Conflict(w, err.Error())
		return
	case errors.Is(err, errUnavailable):
		httputil.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	for _, target := range invalidJobErrors {
		if errors.Is(err, target) {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	httputil.InternalError(w, err)
}
