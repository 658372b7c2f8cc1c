// Package monitoring keeps in-process counters and latency summaries for the scoring service.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxSamples bounds the latency history kept per series
const maxSamples = 1000

const (
	RequestsTotal          = "http_requests_total"
	RequestLatency         = "http_request_duration_seconds"
	PredictionsTotal       = "predictions_total"
	PredictionErrorsTotal  = "prediction_errors_total"
	ValidationErrorsTotal  = "validation_errors_total"
	PredictionLatency      = "prediction_duration_seconds"
	ModelReloadsTotal      = "model_reloads_total"
	ModelReloadErrorsTotal = "model_reload_errors_total"
)

// Summary describes the retained samples of one latency series.
type Summary struct {
	Count   int     `json:"count"`
	Latest  float64 `json:"latest"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// Snapshot is the JSON document served by /metrics.
type Snapshot struct {
	Uptime     string             `json:"uptime"`
	Counters   map[string]float64 `json:"counters"`
	Latencies  map[string]Summary `json:"latencies"`
	Cache      CacheStats         `json:"cache"`
	Goroutines int                `json:"goroutines"`
	HeapAlloc  uint64             `json:"heap_alloc"`
	NumGC      uint32             `json:"num_gc"`
}

type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// MetricsCollector is safe for concurrent use.
type MetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]float64
	samples  map[string][]float64

	startTime  time.Time
	cacheStats func() (hits, misses int64)
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]float64),
		samples:   make(map[string][]float64),
		startTime: time.Now(),
	}
}

// SetCacheSource plugs in the inference cache counters reported by Snapshot.
func (mc *MetricsCollector) SetCacheSource(fn func() (hits, misses int64)) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.cacheStats = fn
}

// IncrCounter adds value to the counter identified by name and labels.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[key] += value
}

// Counter returns the current value of a counter, 0 if it was never touched.
func (mc *MetricsCollector) Counter(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[seriesKey(name, labels)]
}

// ObserveDuration records a latency sample in seconds. Only the last maxSamples
// samples of a series are kept.
func (mc *MetricsCollector) ObserveDuration(name string, d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	series := append(mc.samples[name], d.Seconds())
	if len(series) > maxSamples {
		series = series[len(series)-maxSamples:]
	}
	mc.samples[name] = series
}

func (mc *MetricsCollector) GetSummary(name string) (Summary, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	series, ok := mc.samples[name]
	if !ok {
		return Summary{}, fmt.Errorf("metric %s not found", name)
	}
	return summarize(series), nil
}

// RecordRequest counts a finished HTTP request by status class and records its latency.
func (mc *MetricsCollector) RecordRequest(status int, d time.Duration) {
	mc.IncrCounter(RequestsTotal, 1, map[string]string{"code": fmt.Sprintf("%dxx", status/100)})
	mc.ObserveDuration(RequestLatency, d)
}

func (mc *MetricsCollector) RecordPrediction(d time.Duration, err error) {
	if err != nil {
		mc.IncrCounter(PredictionErrorsTotal, 1, nil)
		return
	}
	mc.IncrCounter(PredictionsTotal, 1, nil)
	mc.ObserveDuration(PredictionLatency, d)
}

func (mc *MetricsCollector) RecordValidationError() {
	mc.IncrCounter(ValidationErrorsTotal, 1, nil)
}

func (mc *MetricsCollector) RecordReload(err error) {
	if err != nil {
		mc.IncrCounter(ModelReloadErrorsTotal, 1, nil)
		return
	}
	mc.IncrCounter(ModelReloadsTotal, 1, nil)
}

func (mc *MetricsCollector) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(mc.startTime).Round(time.Second).String(),
		Counters:   make(map[string]float64, len(mc.counters)),
		Latencies:  make(map[string]Summary, len(mc.samples)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
	}
	for key, value := range mc.counters {
		snap.Counters[key] = value
	}
	for name, series := range mc.samples {
		snap.Latencies[name] = summarize(series)
	}
	if mc.cacheStats != nil {
		snap.Cache.Hits, snap.Cache.Misses = mc.cacheStats()
	}
	return snap
}

// ExportPrometheus renders counters and latency summaries in the text exposition format.
func (mc *MetricsCollector) ExportPrometheus() string {
	snap := mc.Snapshot()
	var b strings.Builder

	keys := make([]string, 0, len(snap.Counters))
	for key := range snap.Counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s %g\n", key, snap.Counters[key])
	}

	names := make([]string, 0, len(snap.Latencies))
	for name := range snap.Latencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := snap.Latencies[name]
		fmt.Fprintf(&b, "%s_count %d\n", name, s.Count)
		fmt.Fprintf(&b, "%s_sum %g\n", name, s.Average*float64(s.Count))
	}

	fmt.Fprintf(&b, "inference_cache_hits_total %d\n", snap.Cache.Hits)
	fmt.Fprintf(&b, "inference_cache_misses_total %d\n", snap.Cache.Misses)
	fmt.Fprintf(&b, "go_goroutines %d\n", snap.Goroutines)
	return b.String()
}

func summarize(series []float64) Summary {
	if len(series) == 0 {
		return Summary{}
	}
	s := Summary{
		Count:  len(series),
		Latest: series[len(series)-1],
		Min:    series[0],
		Max:    series[0],
	}
	sum := 0.0
	for _, v := range series {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Average = sum / float64(len(series))
	return s
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, v))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}
