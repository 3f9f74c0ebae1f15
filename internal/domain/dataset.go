package domain

// Dataset describes a multi-table join over Parquet files. Table 0 is the
// join anchor and never carries conditions.
type Dataset struct {
	Tables []TableSpec `json:"tables"`
}

// TableSpec lists the files read as one table and how it joins earlier tables.
type TableSpec struct {
	Files      []string        `json:"files"`
	Conditions []JoinCondition `json:"conditions"`
}

// JoinCondition equates a column of an earlier table with a column of the
// current one. SourceTable is the earlier table's index as a string, or
// NoSourceTable.
type JoinCondition struct {
	SourceTable  string `json:"sourceTable"`
	SourceColumn string `json:"sourceColumn"`
	TargetColumn string `json:"targetColumn"`
}

// NoSourceTable marks a condition whose source table is not chosen yet.
const NoSourceTable = "-1"
