package duckdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
	"github.com/ignite/campaign-dashboard/internal/segmentation"
)

// Describe returns the column names and types of a cube query.
func (e *Engine) Describe(ctx context.Context, creds domain.S3ProviderDetails, cubeSQL string) ([]domain.ColumnMetadata, error) {
	rows, err := e.Query(ctx, creds, "DESCRIBE "+trimStatement(cubeSQL))
	if err != nil {
		return nil, err
	}
	cols := make([]domain.ColumnMetadata, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, domain.ColumnMetadata{
			ColumnName: fmt.Sprint(r["column_name"]),
			ColumnType: fmt.Sprint(r["column_type"]),
		})
	}
	return cols, nil
}

// ParquetSchema returns the raw parquet_schema rows of a file.
func (e *Engine) ParquetSchema(ctx context.Context, creds domain.S3ProviderDetails, path string) ([]Row, error) {
	return e.Query(ctx, creds, "SELECT * FROM parquet_schema("+sqlquote.Literal(path)+")")
}

// FetchValues lists the distinct values of a cube column, unnesting array
// columns. A non-empty search keeps values containing it.
func (e *Engine) FetchValues(ctx context.Context, creds domain.S3ProviderDetails, cubeSQL string, column domain.ColumnMetadata, search string) ([]string, error) {
	col := sqlquote.Column(column.ColumnName)
	expr := col
	if column.IsArray() {
		expr = "unnest(" + col + ")"
	}
	query := fmt.Sprintf("SELECT DISTINCT CAST(v AS VARCHAR) AS v FROM (SELECT %s AS v FROM (%s))", expr, trimStatement(cubeSQL))
	if search != "" {
		query += " WHERE CAST(v AS VARCHAR) LIKE " + sqlquote.Contains(search) + ` ESCAPE '\'`
	}
	query += " ORDER BY v"

	rows, err := e.Query(ctx, creds, query)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		if r["v"] == nil {
			continue
		}
		values = append(values, fmt.Sprint(r["v"]))
	}
	return values, nil
}

// PopulationQuery describes an audience size count.
type PopulationQuery struct {
	SQL         string
	Where       string
	IDFieldName string
	Distinct    bool
}

// CountPopulation counts cube rows matching a compiled segment predicate.
func (e *Engine) CountPopulation(ctx context.Context, creds domain.S3ProviderDetails, q PopulationQuery) (int64, error) {
	target := "*"
	if q.IDFieldName != "" {
		target = sqlquote.Column(q.IDFieldName)
		if q.Distinct {
			target = "DISTINCT " + target
		}
	}
	query := fmt.Sprintf("SELECT COUNT(%s) AS population FROM (%s) WHERE %s",
		target, trimStatement(q.SQL), segmentation.OrAlwaysTrue(q.Where))

	rows, err := e.Query(ctx, creds, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch n := rows[0]["population"].(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(n), 10, 64)
	}
}

func trimStatement(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";")
}
