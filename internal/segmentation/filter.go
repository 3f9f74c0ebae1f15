// Package segmentation compiles audience segment rules, stored as JSON-logic
// trees, into DuckDB boolean expressions over cube columns.
package segmentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
)

// Operator is a JSON-logic operator understood by the compiler.
type Operator string

const (
	OpOr  Operator = "or"
	OpAnd Operator = "and"
	OpIn  Operator = "in"
)

// AlwaysTrue is the predicate callers use when a rule compiles to nothing.
const AlwaysTrue = "1 = 1"

// matchNone stands in for a condition the compiler does not understand.
const matchNone = "false"

// ErrUnsupportedRule is returned for a stored rule whose root is not a
// recognized operator.
var ErrUnsupportedRule = errors.New("unsupported segment rule")

// CompileFilter compiles a decoded JSON-logic node into a SQL predicate.
// Column types decide whether an "in" test is an equality or an array
// containment test. Unrecognized nodes compile to "". Inside a group an
// unrecognized condition matches nothing, so it can only narrow the audience.
func CompileFilter(columns []domain.ColumnMetadata, node any) string {
	sql, _ := compileNode(columns, node)
	return sql
}

// compileNode reports ok=false when node is not a recognized operator.
func compileNode(columns []domain.ColumnMetadata, node any) (string, bool) {
	obj, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	if args, ok := obj[string(OpOr)]; ok {
		return compileGroup(columns, args, OpOr)
	}
	if args, ok := obj[string(OpAnd)]; ok {
		return compileGroup(columns, args, OpAnd)
	}
	if args, ok := obj[string(OpIn)]; ok {
		sql := compileIn(columns, args)
		return sql, sql != ""
	}
	return "", false
}

// CompileFilterJSON decodes a stored JSON-logic string and compiles it.
// An empty, null or {} rule compiles to "" without error. Any other rule
// whose root is not a recognized operator fails with ErrUnsupportedRule.
func CompileFilterJSON(columns []domain.ColumnMetadata, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "", nil
	}
	var node any
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return "", fmt.Errorf("decode segment rule: %w", err)
	}
	if obj, ok := node.(map[string]any); ok && len(obj) == 0 {
		return "", nil
	}
	sql, ok := compileNode(columns, node)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
	}
	return sql, nil
}

// OrAlwaysTrue returns predicate, or AlwaysTrue when it is empty.
func OrAlwaysTrue(predicate string) string {
	if predicate == "" {
		return AlwaysTrue
	}
	return predicate
}

// compileGroup joins the children of an "and" or "or". A child that compiles
// to "" matches everyone: it drops out of an "and" and makes an "or" match
// everyone. An unrecognized child matches no one.
func compileGroup(columns []domain.ColumnMetadata, args any, op Operator) (string, bool) {
	children, ok := args.([]any)
	if !ok {
		return "", false
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, ok := compileNode(columns, child)
		switch {
		case !ok:
			if op == OpAnd {
				return matchNone, true
			}
		case sql == "":
			if op == OpOr {
				return "", true
			}
		default:
			parts = append(parts, "("+sql+")")
		}
	}
	if op == OpOr && len(children) > 0 && len(parts) == 0 {
		return matchNone, true
	}
	return strings.Join(parts, " "+strings.ToUpper(string(op))+" "), true
}

// compileIn handles {"in": [{"var": column}, [values...]]}.
func compileIn(columns []domain.ColumnMetadata, args any) string {
	pair, ok := args.([]any)
	if !ok || len(pair) != 2 {
		return ""
	}
	ref, ok := pair[0].(map[string]any)
	if !ok {
		return ""
	}
	name, ok := ref["var"].(string)
	if !ok || name == "" {
		return ""
	}
	values, ok := pair[1].([]any)
	if !ok || len(values) == 0 {
		return ""
	}

	col := sqlquote.Column(name)
	isArray := columnIsArray(columns, name)
	parts := make([]string, 0, len(values))
	for _, v := range values {
		lit := sqlquote.Literal(sqlquote.Stringify(v))
		if isArray {
			parts = append(parts, fmt.Sprintf("array_contains(%s, %s)", col, lit))
		} else {
			parts = append(parts, fmt.Sprintf("%s = %s", col, lit))
		}
	}
	return strings.Join(parts, " OR ")
}

func columnIsArray(columns []domain.ColumnMetadata, name string) bool {
	for _, c := range columns {
		if c.ColumnName == name {
			return c.IsArray()
		}
	}
	return false
}
