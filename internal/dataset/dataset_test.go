package dataset

import (
	"testing"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTableDataset() domain.Dataset {
	return domain.Dataset{Tables: []domain.TableSpec{
		{Files: []string{"s3://bucket/users/part-0.parquet", "s3://bucket/users/part-1.parquet"}, Conditions: []domain.JoinCondition{}},
		{Files: []string{"s3://bucket/orders.parquet"}, Conditions: []domain.JoinCondition{
			{SourceTable: "0", SourceColumn: "user_id", TargetColumn: "buyer_id"},
		}},
		{Files: []string{"s3://bucket/o'neil.parquet"}, Conditions: []domain.JoinCondition{
			{SourceTable: "0", SourceColumn: "user_id", TargetColumn: "uid"},
			{SourceTable: "1", SourceColumn: "order id", TargetColumn: "order_id"},
		}},
	}}
}

func TestBuildJoinSQL(t *testing.T) {
	d := domain.Dataset{Tables: []domain.TableSpec{
		{Files: []string{"a.parquet", "b.parquet"}},
		{Files: []string{"c.parquet"}, Conditions: []domain.JoinCondition{
			{SourceTable: "0", SourceColumn: "id", TargetColumn: "user_id"},
		}},
	}}
	want := "SELECT  *\nFROM    read_parquet(['a.parquet', 'b.parquet']) AS t_0 JOIN read_parquet(['c.parquet']) AS t_1 ON (t_0.id = t_1.user_id)"
	assert.Equal(t, want, BuildJoinSQL(d))
}

func TestBuildJoinSQL_CrossJoinAndSkippedConditions(t *testing.T) {
	d := domain.Dataset{Tables: []domain.TableSpec{
		{Files: []string{"a.parquet"}},
		{Files: []string{"b.parquet"}, Conditions: []domain.JoinCondition{
			{SourceTable: domain.NoSourceTable, SourceColumn: "x", TargetColumn: "y"},
		}},
	}}
	assert.Equal(t, "SELECT  *\nFROM    read_parquet(['a.parquet']) AS t_0 JOIN read_parquet(['b.parquet']) AS t_1", BuildJoinSQL(d))
}

func TestFromSQL_RoundTrip(t *testing.T) {
	d := threeTableDataset()
	got, err := FromSQL(BuildJoinSQL(d))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d, *got)
}

func TestFromSQL_EmptyInput(t *testing.T) {
	got, err := FromSQL("")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFromSQL_ToleratesWhitespaceAndCase(t *testing.T) {
	sql := "select *\n  from read_parquet([ 'a.parquet' ]) as t_0\n  join read_parquet(['b.parquet'])  as t_1 on ( t_0.id=t_1.id );"
	got, err := FromSQL(sql)
	require.NoError(t, err)
	require.Len(t, got.Tables, 2)
	assert.Equal(t, []string{"a.parquet"}, got.Tables[0].Files)
	assert.Equal(t, []domain.JoinCondition{{SourceTable: "0", SourceColumn: "id", TargetColumn: "id"}}, got.Tables[1].Conditions)
}

func TestFromSQL_PartialOnUnsupportedJoin(t *testing.T) {
	sql := "SELECT * FROM read_parquet(['a.parquet']) AS t_0 LEFT JOIN read_parquet(['b.parquet']) AS t_1 ON (t_0.id = t_1.id)"
	got, err := FromSQL(sql)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.NotNil(t, got)
	require.Len(t, got.Tables, 1)
	assert.Equal(t, []string{"a.parquet"}, got.Tables[0].Files)
}

func TestFromSQL_Garbage(t *testing.T) {
	got, err := FromSQL("DELETE FROM users")
	require.Error(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Tables)

	_, err = FromSQL("SELECT * FROM read_parquet(['unterminated")
	assert.Error(t, err)
}
