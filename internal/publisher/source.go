package publisher

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-dashboard/internal/smsjob"
)

// ResultSource reads windows from the result table of a job session.
type ResultSource struct {
	db *sql.DB
}

// NewResultSource creates a source over db's result table.
func NewResultSource(db *sql.DB) *ResultSource {
	return &ResultSource{db: db}
}

// Window implements Source.
func (s *ResultSource) Window(ctx context.Context, after *string, size int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, smsjob.WindowSQL(after, size))
	if err != nil {
		return nil, fmt.Errorf("query result window: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var placementID, adSetID, from, to, message sql.NullString
		if err := rows.Scan(&placementID, &adSetID, &from, &to, &message); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.PlacementID = placementID.String
		r.AdSetID = adSetID.String
		r.From = from.String
		r.To = to.String
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}
