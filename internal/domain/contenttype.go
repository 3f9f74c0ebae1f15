package domain

import (
	"encoding/json"
	"strings"
)

// ColumnMetadata describes a column of a cube query result. A trailing "[]"
// on ColumnType marks an array-valued column.
type ColumnMetadata struct {
	ColumnName string `json:"column_name"`
	ColumnType string `json:"column_type"`
}

// IsArray reports whether the column holds a list value.
func (c ColumnMetadata) IsArray() bool {
	return strings.HasSuffix(c.ColumnType, "[]")
}

// SMSContentTypeDetail is the SMS flavour of ContentType.Details.
type SMSContentTypeDetail struct {
	From              string           `json:"from"`
	Template          string           `json:"template"`
	Columns           []ColumnMetadata `json:"columns"`
	ToColumn          string           `json:"toColumn"`
	SMSIntegrationID  string           `json:"smsIntegrationId,omitempty"`
	CubeIntegrationID string           `json:"cubeIntegrationId,omitempty"`
	DefaultValues     JSONObject       `json:"defaultValues,omitempty"`
	TestTos           []string         `json:"testTos,omitempty"`
}

// ColumnNames returns the names of all columns in declaration order.
func (d SMSContentTypeDetail) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		names = append(names, c.ColumnName)
	}
	return names
}

// ParseSMSContentTypeDetail decodes a content type's details as SMS details.
func ParseSMSContentTypeDetail(raw json.RawMessage) (SMSContentTypeDetail, error) {
	var d SMSContentTypeDetail
	if len(raw) == 0 {
		return d, nil
	}
	err := json.Unmarshal(raw, &d)
	return d, err
}
