// Package dataset compiles a structured multi-table dataset description into
// a DuckDB join over Parquet files, and parses that SQL back so a previously
// generated join can be edited again.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
)

// Alias returns the alias used for the table at index i.
func Alias(i int) string {
	return "t_" + strconv.Itoa(i)
}

// BuildJoinSQL renders d as a single SELECT over read_parquet tables.
// Table 0 is the anchor; every later table joins with an ON clause built
// from its conditions, or with no clause (a cross join) when it has none.
// Conditions without a valid earlier source table are skipped.
func BuildJoinSQL(d domain.Dataset) string {
	joins := make([]string, 0, len(d.Tables))
	for i, table := range d.Tables {
		var b strings.Builder
		fmt.Fprintf(&b, "read_parquet([%s]) AS %s", sqlquote.LiteralList(table.Files), Alias(i))
		if i > 0 {
			if on := onClause(i, table.Conditions); on != "" {
				b.WriteString(" ON (" + on + ")")
			}
		}
		joins = append(joins, b.String())
	}
	return "SELECT  *\nFROM    " + strings.Join(joins, " JOIN ")
}

func onClause(target int, conds []domain.JoinCondition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		src, err := strconv.Atoi(c.SourceTable)
		if err != nil || src < 0 || src >= target {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s.%s = %s.%s",
			Alias(src), sqlquote.Column(c.SourceColumn),
			Alias(target), sqlquote.Column(c.TargetColumn)))
	}
	return strings.Join(parts, " AND ")
}
