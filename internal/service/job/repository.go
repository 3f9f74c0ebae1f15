package job

import (
	"context"

	"github.com/ignite/campaign-dashboard/internal/domain"
)

// Repository is the read-only data access contract for jobs.
type Repository interface {
	// Get returns a single job or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// List returns jobs matching the filter, oldest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Job, error)
}

// ListFilter narrows List. An empty Statuses matches every status.
type ListFilter struct {
	Statuses []domain.JobStatus
	Limit    int
}
