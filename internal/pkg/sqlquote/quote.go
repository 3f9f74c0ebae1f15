// Package sqlquote is the single place where values and names are inlined
// into generated DuckDB SQL. Every interpolation site in the pipeline goes
// through Literal or Ident.
package sqlquote

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Literal renders s as a single-quoted SQL string literal, doubling any
// embedded single quotes.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Ident renders name as a double-quoted identifier, doubling embedded quotes.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Column renders a column reference, leaving simple names bare so generated
// SQL stays readable.
func Column(name string) string {
	if bareIdent.MatchString(name) {
		return name
	}
	return Ident(name)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains renders a LIKE pattern matching any text that contains s
// literally. Use it with ESCAPE '\'.
func Contains(s string) string {
	return Literal("%" + likeEscaper.Replace(s) + "%")
}

// LiteralList renders values as a comma-separated list of literals.
func LiteralList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Literal(v)
	}
	return strings.Join(quoted, ", ")
}

// Stringify converts a decoded JSON scalar into the text inlined as a
// literal. Whole floats drop their fractional part.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case interface{ String() string }:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
