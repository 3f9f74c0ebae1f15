package segmentation

import (
	"testing"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []domain.ColumnMetadata{
	{ColumnName: "genres", ColumnType: "VARCHAR[]"},
	{ColumnName: "age", ColumnType: "INTEGER"},
	{ColumnName: "city", ColumnType: "VARCHAR"},
}

func in(column string, values ...any) map[string]any {
	return map[string]any{"in": []any{map[string]any{"var": column}, values}}
}

func TestCompileFilter_In(t *testing.T) {
	assert.Equal(t,
		"array_contains(genres, 'action') OR array_contains(genres, 'drama')",
		CompileFilter(testColumns, in("genres", "action", "drama")))
	assert.Equal(t,
		"age = '18' OR age = '19'",
		CompileFilter(testColumns, in("age", "18", "19")))
}

func TestCompileFilter_NumbersAndQuotes(t *testing.T) {
	assert.Equal(t, "age = '18'", CompileFilter(testColumns, in("age", float64(18))))
	assert.Equal(t, "city = 'Hwaseong''s'", CompileFilter(testColumns, in("city", "Hwaseong's")))
}

func TestCompileFilter_Groups(t *testing.T) {
	node := map[string]any{"and": []any{
		in("city", "Seoul"),
		map[string]any{"or": []any{in("age", "20"), in("genres", "news")}},
	}}
	want := "(city = 'Seoul') AND ((age = '20') OR (array_contains(genres, 'news')))"
	assert.Equal(t, want, CompileFilter(testColumns, node))
}

func TestCompileFilter_Unrecognized(t *testing.T) {
	assert.Equal(t, "", CompileFilter(testColumns, map[string]any{"==": []any{map[string]any{"var": "age"}, "1"}}))
	assert.Equal(t, "", CompileFilter(testColumns, "age"))
	assert.Equal(t, "", CompileFilter(testColumns, nil))
	assert.Equal(t, "", CompileFilter(testColumns, map[string]any{"and": []any{}}))

}

func TestCompileFilter_UnrecognizedChildNeverWidens(t *testing.T) {
	unknown := map[string]any{"==": []any{map[string]any{"var": "vip"}, true}}
	tests := []struct {
		name string
		node map[string]any
		want string
	}{
		{"or drops it", map[string]any{"or": []any{in("age", "1"), unknown}}, "(age = '1')"},
		{"or of only unknown", map[string]any{"or": []any{unknown}}, "false"},
		{"and fails", map[string]any{"and": []any{unknown, in("city", "Seoul")}}, "false"},
		{"nested and fails", map[string]any{"or": []any{
			in("age", "1"),
			map[string]any{"and": []any{in("city", "Seoul"), unknown}},
		}}, "(age = '1') OR (false)"},
		{"malformed in fails and", map[string]any{"and": []any{in("city", "Seoul"), map[string]any{"in": "x"}}}, "false"},
		{"empty child widens or", map[string]any{"or": []any{in("age", "1"), map[string]any{"and": []any{}}}}, ""},
		{"empty child drops from and", map[string]any{"and": []any{in("age", "1"), map[string]any{"and": []any{}}}}, "(age = '1')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompileFilter(testColumns, tt.node))
		})
	}
}

func TestCompileFilterJSON(t *testing.T) {
	sql, err := CompileFilterJSON(testColumns, `{"in":[{"var":"genres"},["action","drama"]]}`)
	require.NoError(t, err)
	assert.Equal(t, "array_contains(genres, 'action') OR array_contains(genres, 'drama')", sql)

	sql, err = CompileFilterJSON(testColumns, "")
	require.NoError(t, err)
	assert.Equal(t, "", sql)

	_, err = CompileFilterJSON(testColumns, "{not json")
	assert.Error(t, err)

	sql, err = CompileFilterJSON(testColumns, "{}")
	require.NoError(t, err)
	assert.Equal(t, "", sql)

	_, err = CompileFilterJSON(testColumns, `{"==":[{"var":"age"},"1"]}`)
	assert.ErrorIs(t, err, ErrUnsupportedRule)
	_, err = CompileFilterJSON(testColumns, `"age"`)
	assert.ErrorIs(t, err, ErrUnsupportedRule)
}

func TestOrAlwaysTrue(t *testing.T) {
	assert.Equal(t, "1 = 1", OrAlwaysTrue(""))
	assert.Equal(t, "age = '1'", OrAlwaysTrue("age = '1'"))
}
