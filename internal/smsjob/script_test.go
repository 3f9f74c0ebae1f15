package smsjob

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cubeSQL = `SELECT * FROM (VALUES
    ('01000000001', 'Seoul', 20, ['news', 'sports']),
    ('01000000002', 'Busan', 31, ['drama']),
    ('01000000003', 'Seoul', 45, ['drama']),
    ('01000000004', 'Daegu', 52, ['news'])
) AS t(phone, city, age, genres)`

func jobInput(adSets ...AdSetInput) JobInput {
	return JobInput{
		Details: domain.SMSContentTypeDetail{From: "15880000", Template: "Hi {{city}} {{coupon}}", ToColumn: "phone"},
		AdSets:  adSets,
	}
}

func adSet(id, filter string) AdSetInput {
	return AdSetInput{
		ID:          id,
		Filter:      filter,
		Variables:   []string{"city", "coupon"},
		Columns:     []string{"phone", "city", "age", "genres"},
		Values:      map[string]any{"coupon": "SALE'" + id},
		Template:    "Hi {{city}} {{coupon}}",
		PlacementID: "placement_1",
		ToColumn:    "phone",
	}
}

func TestBuildProcessSQL_Preconditions(t *testing.T) {
	in := jobInput(adSet("a", ""))

	_, err := BuildProcessSQL("", in, "")
	assert.ErrorIs(t, err, ErrMissingCubeSQL)

	noSender := in
	noSender.Details.From = ""
	_, err = BuildProcessSQL(cubeSQL, noSender, "")
	assert.ErrorIs(t, err, ErrMissingSender)

	_, err = BuildProcessSQL(cubeSQL, jobInput(), "")
	assert.ErrorIs(t, err, ErrNoAdSets)
}

func TestBuildProcessSQL_Stages(t *testing.T) {
	script, err := BuildProcessSQL(cubeSQL, jobInput(adSet("a", ""), adSet("b", "")), "s3://pikachu-dev/jobs/processed/job_1")
	require.NoError(t, err)

	order := []string{
		"DROP TABLE IF EXISTS pivotted;",
		"CREATE TABLE pivotted AS",
		`UNPIVOT pivotted ON "a", "b" INTO NAME ad_set_id VALUE matched`,
		"PARTITION BY to_column ORDER BY CASE ad_set_id WHEN 'a' THEN 0 WHEN 'b' THEN 1 END",
		"CREATE TABLE result AS",
		"'15880000' AS from_column",
		"COPY (SELECT * FROM result) TO 's3://pikachu-dev/jobs/processed/job_1' (FORMAT PARQUET, PARTITION_BY (placement_id, ad_set_id), OVERWRITE_OR_IGNORE);",
	}
	last := -1
	for _, fragment := range order {
		idx := strings.Index(script, fragment)
		require.GreaterOrEqual(t, idx, 0, "missing %q", fragment)
		assert.Greater(t, idx, last, "%q out of order", fragment)
		last = idx
	}
}

func TestBuildProcessSQL_NoCopyWithoutOutput(t *testing.T) {
	script, err := BuildProcessSQL(cubeSQL, jobInput(adSet("a", "")), "")
	require.NoError(t, err)
	assert.NotContains(t, script, "COPY")
}

func TestOutputAndPartitionPaths(t *testing.T) {
	out := OutputPath("", DefaultOutputPrefix, "job_1")
	assert.Equal(t, "s3://pikachu-dev/jobs/processed/job_1", out)
	assert.Equal(t, "s3://bucket/job_1", OutputPath("bucket", "", "job_1"))

	paths := PartitionPaths(out, jobInput(adSet("a", ""), adSet("b", "")))
	assert.Equal(t, []string{
		"s3://pikachu-dev/jobs/processed/job_1/placement_id=placement_1/ad_set_id=a",
		"s3://pikachu-dev/jobs/processed/job_1/placement_id=placement_1/ad_set_id=b",
	}, paths)
}

func TestBuildResultSQL(t *testing.T) {
	assert.Equal(t, "", BuildResultSQL(nil))
	sql := BuildResultSQL([]string{"s3://b/p/data_0.parquet"})
	assert.Contains(t, sql, "'received_sms_message' AS what")
	assert.Contains(t, sql, "read_parquet(['s3://b/p/data_0.parquet'], hive_partitioning = true)")
}

func TestWindowSQL(t *testing.T) {
	assert.NotContains(t, WindowSQL(nil, 100), "WHERE")
	after := "0100'1"
	sql := WindowSQL(&after, 100)
	assert.Contains(t, sql, "WHERE   to_column > '0100''1'")
	assert.Contains(t, sql, "LIMIT   100")
}

type resultRow struct {
	to, adSet, message, from string
}

func runScript(t *testing.T, in JobInput) []resultRow {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	script, err := BuildProcessSQL(cubeSQL, in, "")
	require.NoError(t, err)
	ctx := context.Background()
	_, err = db.ExecContext(ctx, script)
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, "SELECT to_column, ad_set_id, message, from_column FROM result ORDER BY to_column")
	require.NoError(t, err)
	defer rows.Close()
	var out []resultRow
	for rows.Next() {
		var r resultRow
		require.NoError(t, rows.Scan(&r.to, &r.adSet, &r.message, &r.from))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestProcessScript_ExclusiveFiltersAssignAtMostOneAdSet(t *testing.T) {
	rows := runScript(t, jobInput(
		adSet("seoul", "city = 'Seoul'"),
		adSet("busan", "city = 'Busan'"),
	))

	seen := map[string]int{}
	for _, r := range rows {
		seen[r.to]++
	}
	for to, n := range seen {
		assert.Equal(t, 1, n, "recipient %s assigned %d times", to, n)
	}
	assert.Len(t, rows, 3, "Daegu matches neither ad set")
	assert.Equal(t, "Hi Busan SALE'busan", rows[1].message)
	assert.Equal(t, "busan", rows[1].adSet)
	assert.Equal(t, "15880000", rows[0].from)
}

func TestProcessScript_OverlappingFiltersAssignExactlyOneAdSet(t *testing.T) {
	rows := runScript(t, jobInput(
		adSet("drama", "array_contains(genres, 'drama')"),
		adSet("everyone", ""),
	))

	require.Len(t, rows, 4)
	seen := map[string]int{}
	for _, r := range rows {
		seen[r.to]++
		assert.Contains(t, []string{"drama", "everyone"}, r.adSet)
	}
	for to, n := range seen {
		assert.Equal(t, 1, n, "recipient %s assigned %d times", to, n)
	}
	// Earlier ad sets win ties.
	assert.Equal(t, "everyone", rows[0].adSet)
	assert.Equal(t, "drama", rows[1].adSet)
	assert.Equal(t, "drama", rows[2].adSet)
	assert.Equal(t, "everyone", rows[3].adSet)
}
