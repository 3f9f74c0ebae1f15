package smsjob

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
	"github.com/ignite/campaign-dashboard/internal/segmentation"
)

// Per-ad-set column suffixes in the pivot stage.
const (
	fieldMessage     = "message"
	fieldTemplate    = "template"
	fieldPlacementID = "placement_id"
	fieldUserValues  = "user_values"
	fieldCubeValues  = "cube_values"
)

// ColumnName is the pivot-stage column holding field for an ad set.
func ColumnName(adSetID, field string) string {
	return adSetID + "__" + field
}

// CubeVariables are the template variables backed by a cube column, in
// template order. Repeated placeholders appear once.
func (a AdSetInput) CubeVariables() []string {
	cols := make(map[string]bool, len(a.Columns))
	for _, c := range a.Columns {
		cols[c] = true
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, v := range a.Variables {
		if cols[v] && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// UserVariables are the value keys not shadowed by a cube variable, sorted.
func (a AdSetInput) UserVariables() []string {
	cube := make(map[string]bool)
	for _, v := range a.CubeVariables() {
		cube[v] = true
	}
	out := []string{}
	for k := range a.Values {
		if !cube[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func placeholder(name string) string {
	return sqlquote.Literal("{{" + name + "}}")
}

// MessageExpr renders the template substitution as nested replace calls:
// cube variables read the row's column, user values are inlined literals.
// A NULL cube cell keeps its placeholder.
func (a AdSetInput) MessageExpr() string {
	expr := sqlquote.Literal(a.Template)
	for _, v := range a.CubeVariables() {
		expr = fmt.Sprintf("replace(%s, %s, coalesce(CAST(%s AS VARCHAR), %s))",
			expr, placeholder(v), sqlquote.Ident(v), placeholder(v))
	}
	for _, k := range a.UserVariables() {
		expr = fmt.Sprintf("replace(%s, %s, %s)",
			expr, placeholder(k), sqlquote.Literal(sqlquote.Stringify(a.Values[k])))
	}
	return expr
}

// MatchExpr is the ad set's boolean audience column.
func (a AdSetInput) MatchExpr() string {
	return fmt.Sprintf("IF(%s, true, false) AS %s",
		segmentation.OrAlwaysTrue(a.Filter), sqlquote.Ident(a.ID))
}

// UserValuesExpr snapshots the inlined user values, or NULL when there are none.
func (a AdSetInput) UserValuesExpr() string {
	keys := a.UserVariables()
	if len(keys) == 0 {
		return "NULL"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s := %s", sqlquote.Ident(k), sqlquote.Literal(sqlquote.Stringify(a.Values[k])))
	}
	return "struct_pack(" + strings.Join(parts, ", ") + ")"
}

// CubeValuesExpr snapshots the cube columns used, or NULL when there are none.
func (a AdSetInput) CubeValuesExpr() string {
	vars := a.CubeVariables()
	if len(vars) == 0 {
		return "NULL"
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = fmt.Sprintf("%s := %s", sqlquote.Ident(v), sqlquote.Ident(v))
	}
	return "struct_pack(" + strings.Join(parts, ", ") + ")"
}

// SelectExprs lists every pivot-stage expression for the ad set.
func (a AdSetInput) SelectExprs() []string {
	alias := func(field string) string { return sqlquote.Ident(ColumnName(a.ID, field)) }
	return []string{
		a.MatchExpr(),
		a.MessageExpr() + " AS " + alias(fieldMessage),
		sqlquote.Literal(a.Template) + " AS " + alias(fieldTemplate),
		sqlquote.Literal(a.PlacementID) + " AS " + alias(fieldPlacementID),
		a.UserValuesExpr() + " AS " + alias(fieldUserValues),
		a.CubeValuesExpr() + " AS " + alias(fieldCubeValues),
	}
}

// ToColumnExpr projects the recipient column as text.
func (a AdSetInput) ToColumnExpr() string {
	return fmt.Sprintf("CAST(%s AS VARCHAR) AS to_column", sqlquote.Ident(a.ToColumn))
}
