package smsjob

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
)

// Stage tables created by the process script.
const (
	TablePivotted     = "pivotted"
	TableUnpivotted   = "unpivotted"
	TableDeduplicated = "deduplicated"
	TableResult       = "result"
)

// EventWhat is the event name emitted for every processed recipient.
const EventWhat = "received_sms_message"

// Default output location for processed jobs.
const (
	DefaultOutputBucket = "pikachu-dev"
	DefaultOutputPrefix = "jobs/processed"
)

// OutputPath is the S3 directory a job's partitioned result is copied to.
func OutputPath(bucket, prefix, jobID string) string {
	if bucket == "" {
		bucket = DefaultOutputBucket
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("s3://%s/%s", bucket, jobID)
	}
	return fmt.Sprintf("s3://%s/%s/%s", bucket, prefix, jobID)
}

// PartitionPaths lists the hive partition directories the COPY writes, one
// per ad set.
func PartitionPaths(outputPath string, in JobInput) []string {
	paths := make([]string, 0, len(in.AdSets))
	for _, a := range in.AdSets {
		paths = append(paths, fmt.Sprintf("%s/placement_id=%s/ad_set_id=%s",
			strings.TrimRight(outputPath, "/"), a.PlacementID, a.ID))
	}
	return paths
}

// BuildProcessSQL assembles the pivot, unpivot, deduplicate and result stages
// over cubeSQL, followed by a partitioned Parquet COPY to outputPath. The COPY
// is omitted when outputPath is empty.
//
// A recipient matching several ad sets is kept once, for the ad set listed
// first in the input.
func BuildProcessSQL(cubeSQL string, in JobInput, outputPath string) (string, error) {
	if strings.TrimSpace(cubeSQL) == "" {
		return "", ErrMissingCubeSQL
	}
	if in.Details.From == "" {
		return "", ErrMissingSender
	}
	if len(in.AdSets) == 0 {
		return "", ErrNoAdSets
	}
	if in.AdSets[0].ToColumn == "" {
		return "", ErrMissingRecipientColumn
	}

	var b strings.Builder
	for _, t := range []string{TablePivotted, TableUnpivotted, TableDeduplicated, TableResult} {
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", t)
	}

	exprs := make([]string, 0, len(in.AdSets)*6+1)
	ids := make([]string, 0, len(in.AdSets))
	for _, a := range in.AdSets {
		exprs = append(exprs, a.SelectExprs()...)
		ids = append(ids, sqlquote.Ident(a.ID))
	}
	exprs = append(exprs, in.AdSets[0].ToColumnExpr())

	fmt.Fprintf(&b, "\nCREATE TABLE %s AS (\n  SELECT  *,\n          %s\n  FROM    (%s)\n);\n",
		TablePivotted, strings.Join(exprs, ",\n          "), strings.TrimRight(strings.TrimSpace(cubeSQL), ";"))

	fmt.Fprintf(&b, "\nCREATE TABLE %s AS\n  SELECT * FROM (UNPIVOT %s ON %s INTO NAME ad_set_id VALUE matched);\n",
		TableUnpivotted, TablePivotted, strings.Join(ids, ", "))

	fmt.Fprintf(&b, `
CREATE TABLE %s AS (
  SELECT  *
  FROM    (
    SELECT  *,
            row_number() OVER (PARTITION BY to_column ORDER BY %s) AS seq
    FROM    %s
    WHERE   matched AND to_column IS NOT NULL
  )
  WHERE   seq = 1
);
`, TableDeduplicated, priorityExpr(in.AdSets), TableUnpivotted)

	fmt.Fprintf(&b, `
CREATE TABLE %s AS (
  SELECT  %s AS placement_id,
          ad_set_id,
          %s AS from_column,
          to_column,
          %s AS message,
          %s AS template,
          %s AS user_values,
          %s AS cube_values
  FROM    %s
  ORDER BY to_column ASC
);
`, TableResult,
		pick(in.AdSets, fieldPlacementID, false),
		sqlquote.Literal(in.Details.From),
		pick(in.AdSets, fieldMessage, false),
		pick(in.AdSets, fieldTemplate, false),
		pick(in.AdSets, fieldUserValues, true),
		pick(in.AdSets, fieldCubeValues, true),
		TableDeduplicated)

	if outputPath != "" {
		fmt.Fprintf(&b, "\nCOPY (SELECT * FROM %s) TO %s (FORMAT PARQUET, PARTITION_BY (placement_id, ad_set_id), OVERWRITE_OR_IGNORE);\n",
			TableResult, sqlquote.Literal(outputPath))
	}
	return b.String(), nil
}

// priorityExpr ranks ad sets by their input order.
func priorityExpr(adSets []AdSetInput) string {
	var b strings.Builder
	b.WriteString("CASE ad_set_id")
	for i, a := range adSets {
		fmt.Fprintf(&b, " WHEN %s THEN %d", sqlquote.Literal(a.ID), i)
	}
	b.WriteString(" END")
	return b.String()
}

// pick selects the matched ad set's copy of a per-ad-set pivot column.
// Struct snapshots differ in shape per ad set, so they are unified as JSON.
func pick(adSets []AdSetInput, field string, asJSON bool) string {
	var b strings.Builder
	b.WriteString("CASE ad_set_id")
	for _, a := range adSets {
		col := sqlquote.Ident(ColumnName(a.ID, field))
		if asJSON {
			col = "to_json(" + col + ")"
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", sqlquote.Literal(a.ID), col)
	}
	b.WriteString(" END")
	return b.String()
}

// BuildResultSQL reads partitioned job output back as event rows. It
// returns "" when there is nothing to read.
func BuildResultSQL(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return fmt.Sprintf(`SELECT  epoch_ms(CAST(now() AS TIMESTAMP)) AS "when",
        to_column AS who,
        %s AS what,
        ad_set_id AS which,
        placement_id,
        from_column,
        message
FROM    read_parquet([%s], hive_partitioning = true)
ORDER BY to_column ASC`, sqlquote.Literal(EventWhat), sqlquote.LiteralList(paths))
}

// WindowSQL selects the next publication window from the result table.
// An empty after starts from the beginning.
func WindowSQL(after *string, size int) string {
	where := ""
	if after != nil {
		where = "\nWHERE   to_column > " + sqlquote.Literal(*after)
	}
	return fmt.Sprintf(`SELECT  placement_id, ad_set_id, from_column, to_column, message
FROM    %s%s
ORDER BY to_column ASC
LIMIT   %s`, TableResult, where, strconv.Itoa(size))
}
