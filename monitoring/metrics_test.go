package monitoring

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestGroupsByStatusClass(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRequest(200, 10*time.Millisecond)
	mc.RecordRequest(201, 20*time.Millisecond)
	mc.RecordRequest(400, 30*time.Millisecond)

	assert.Equal(t, 2.0, mc.Counter(RequestsTotal, map[string]string{"code": "2xx"}))
	assert.Equal(t, 1.0, mc.Counter(RequestsTotal, map[string]string{"code": "4xx"}))

	summary, err := mc.GetSummary(RequestLatency)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 0.01, summary.Min, 1e-9)
	assert.InDelta(t, 0.03, summary.Max, 1e-9)
	assert.InDelta(t, 0.02, summary.Average, 1e-9)
	assert.InDelta(t, 0.03, summary.Latest, 1e-9)
}

func TestRecordPredictionAndReload(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordPrediction(time.Millisecond, nil)
	mc.RecordPrediction(time.Millisecond, errors.New("boom"))
	mc.RecordReload(nil)
	mc.RecordReload(errors.New("corrupt"))
	mc.RecordValidationError()

	assert.Equal(t, 1.0, mc.Counter(PredictionsTotal, nil))
	assert.Equal(t, 1.0, mc.Counter(PredictionErrorsTotal, nil))
	assert.Equal(t, 1.0, mc.Counter(ModelReloadsTotal, nil))
	assert.Equal(t, 1.0, mc.Counter(ModelReloadErrorsTotal, nil))
	assert.Equal(t, 1.0, mc.Counter(ValidationErrorsTotal, nil))

	summary, err := mc.GetSummary(PredictionLatency)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
}

func TestSampleHistoryIsBounded(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+50; i++ {
		mc.ObserveDuration(PredictionLatency, time.Duration(i)*time.Microsecond)
	}
	summary, err := mc.GetSummary(PredictionLatency)
	require.NoError(t, err)
	assert.Equal(t, maxSamples, summary.Count)
	assert.InDelta(t, 50e-6, summary.Min, 1e-12)
	assert.InDelta(t, float64(maxSamples+49)/1e6, summary.Latest, 1e-12)
}

func TestGetSummaryUnknownMetric(t *testing.T) {
	_, err := NewMetricsCollector().GetSummary("nope")
	assert.Error(t, err)
}

func TestSnapshotIncludesCacheStats(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetCacheSource(func() (int64, int64) { return 7, 3 })
	mc.RecordRequest(200, time.Millisecond)

	snap := mc.Snapshot()
	assert.Equal(t, CacheStats{Hits: 7, Misses: 3}, snap.Cache)
	assert.Equal(t, 1.0, snap.Counters[`http_requests_total{code="2xx"}`])
	assert.Positive(t, snap.Goroutines)

	text := mc.ExportPrometheus()
	assert.True(t, strings.Contains(text, `http_requests_total{code="2xx"} 1`))
	assert.True(t, strings.Contains(text, "inference_cache_hits_total 7"))
	assert.True(t, strings.Contains(text, "http_request_duration_seconds_count 1"))
}
