package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/service/job"
)

const jobColumns = `id, name, COALESCE(description, ''), status,
		       COALESCE("placementId", ''), COALESCE("integrationId", ''),
		       details, "createdAt", "updatedAt"`

// JobRepo implements job.Repository against the dashboard's "Job" table.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (domain.Job, error) {
	var j domain.Job
	var details []byte
	err := s.Scan(&j.ID, &j.Name, &j.Description, &j.Status,
		&j.PlacementID, &j.IntegrationID, &details, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	if len(details) > 0 {
		j.Details = append([]byte(nil), details...)
	}
	return j, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM "Job"
		WHERE id = $1
	`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (r *JobRepo) List(ctx context.Context, f job.ListFilter) ([]domain.Job, error) {
	q := `
		SELECT ` + jobColumns + `
		FROM "Job"`
	var args []any
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		q += fmt.Sprintf(" WHERE status = ANY($%d)", len(args))
	}
	q += ` ORDER BY "createdAt" ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
