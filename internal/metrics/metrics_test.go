package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("test-cache", "hit"))
	RecordCacheLookup("test-cache", true)
	RecordCacheLookup("test-cache", false)
	assert.Equal(t, before+1, testutil.ToFloat64(CacheLookups.WithLabelValues("test-cache", "hit")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(CacheLookups.WithLabelValues("test-cache", "miss")), 1.0)
}

func TestRecordPublished(t *testing.T) {
	before := testutil.ToFloat64(EventsPublished.WithLabelValues("test"))
	RecordPublished("test", 37)
	assert.Equal(t, before+37, testutil.ToFloat64(EventsPublished.WithLabelValues("test")))
}

func TestObserveScript(t *testing.T) {
	ObserveScript("test", time.Now().Add(-time.Second))
	assert.Equal(t, 1, testutil.CollectAndCount(ScriptDuration))
}
