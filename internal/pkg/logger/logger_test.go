package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***5678", RedactPhone("010-1234-5678"))
	assert.Equal(t, "***5678", RedactPhone("+821012345678"))
	assert.Equal(t, "***", RedactPhone("1234"))
	assert.Equal(t, "***", RedactPhone(""))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLog_RedactsRecipientFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("published window", "to", "01012345678", "job_id", "job-1", "note", "mail kim@example.com")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "***5678", entry["to"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "mail ki***@example.com", entry["note"])
}

func TestLog_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("hidden")
	assert.Zero(t, buf.Len())
	Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
