package api

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reposcope/internal/version"
)

// MetricsCollector collects and exposes Prometheus metrics. It also
// implements analysis.Recorder.
type MetricsCollector struct {
	// Counters
	analysesTotal   *Counter
	cacheHits       *Counter
	fallbacksTotal  *Counter
	githubRequests  *Counter
	httpErrorsTotal *Counter

	// Histograms
	analysisDuration *Histogram

	// Gauges
	goroutines  *Gauge
	memoryAlloc *Gauge

	startTime time.Time
}

// Counter is a monotonically increasing counter
type Counter struct {
	name   string
	help   string
	labels []string
	values sync.Map // map[string]*uint64
}

// Histogram tracks distributions of values
type Histogram struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	values  sync.Map // map[string]*histogramValue
}

type histogramValue struct {
	mu      sync.Mutex
	sum     float64
	count   uint64
	buckets []uint64
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name   string
	help   string
	labels []string
	values sync.Map // map[string]*float64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime: time.Now(),
		analysesTotal: &Counter{
			name:   "reposcope_analyses_total",
			help:   "Total number of analyses by outcome",
			labels: []string{"outcome"},
		},
		cacheHits: &Counter{
			name: "reposcope_cache_hits_total",
			help: "Analyses served from the cache",
		},
		fallbacksTotal: &Counter{
			name:   "reposcope_llm_fallbacks_total",
			help:   "Analyses built statically because the model could not be used",
			labels: []string{"reason"},
		},
		githubRequests: &Counter{
			name:   "reposcope_github_requests_total",
			help:   "Requests sent to the GitHub API by status class",
			labels: []string{"status"},
		},
		httpErrorsTotal: &Counter{
			name:   "reposcope_http_errors_total",
			help:   "HTTP responses with a 4xx or 5xx status",
			labels: []string{"status"},
		},
		analysisDuration: &Histogram{
			name:    "reposcope_analysis_duration_seconds",
			help:    "Duration of analyses in seconds",
			labels:  []string{"outcome"},
			buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		goroutines: &Gauge{
			name: "reposcope_goroutines",
			help: "Number of goroutines",
		},
		memoryAlloc: &Gauge{
			name: "reposcope_memory_alloc_bytes",
			help: "Allocated memory in bytes",
		},
	}
}

// AnalysisFinished records a finished analysis
func (m *MetricsCollector) AnalysisFinished(outcome string, d time.Duration) {
	m.analysesTotal.Inc(outcome)
	m.analysisDuration.Observe(d.Seconds(), outcome)
}

// CacheHit records an analysis served from the cache
func (m *MetricsCollector) CacheHit() {
	m.cacheHits.Inc()
}

// Fallback records a static fallback. Reasons are collapsed to their
// leading phrase to keep label cardinality low.
func (m *MetricsCollector) Fallback(reason string) {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		reason = reason[:i]
	}
	m.fallbacksTotal.Inc(reason)
}

// RecordHTTPError records an error response
func (m *MetricsCollector) RecordHTTPError(status int) {
	m.httpErrorsTotal.Inc(strconv.Itoa(status))
}

// RecordGitHubRequest records one GitHub API call. status 0 means the
// request failed before a response arrived.
func (m *MetricsCollector) RecordGitHubRequest(status int) {
	class := "error"
	if status > 0 {
		class = fmt.Sprintf("%dxx", status/100)
	}
	m.githubRequests.Inc(class)
}

// InstrumentTransport counts the requests sent through base.
func (m *MetricsCollector) InstrumentTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := base.RoundTrip(req)
		if err != nil {
			m.RecordGitHubRequest(0)
			return nil, err
		}
		m.RecordGitHubRequest(resp.StatusCode)
		return resp, nil
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// WritePrometheus writes metrics in Prometheus text format
func (m *MetricsCollector) WritePrometheus(w io.Writer) {
	// Update runtime metrics
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryAlloc.Set(float64(memStats.Alloc))

	fmt.Fprintf(w, "# HELP reposcope_info RepoScope build information\n")
	fmt.Fprintf(w, "# TYPE reposcope_info gauge\n")
	fmt.Fprintf(w, "reposcope_info{version=\"%s\"} 1\n\n", version.Version)

	fmt.Fprintf(w, "# HELP reposcope_uptime_seconds Time since RepoScope started\n")
	fmt.Fprintf(w, "# TYPE reposcope_uptime_seconds counter\n")
	fmt.Fprintf(w, "reposcope_uptime_seconds %.3f\n\n", time.Since(m.startTime).Seconds())

	m.writeCounter(w, m.analysesTotal)
	m.writeCounter(w, m.cacheHits)
	m.writeCounter(w, m.fallbacksTotal)
	m.writeCounter(w, m.githubRequests)
	m.writeCounter(w, m.httpErrorsTotal)

	m.writeHistogram(w, m.analysisDuration)

	m.writeGauge(w, m.goroutines)
	m.writeGauge(w, m.memoryAlloc)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, value interface{}) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func (m *MetricsCollector) writeCounter(w io.Writer, c *Counter) {
	fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
	fmt.Fprintf(w, "# TYPE %s counter\n", c.name)

	for _, key := range sortedKeys(&c.values) {
		val, _ := c.values.Load(key)
		if ptr, ok := val.(*uint64); ok {
			fmt.Fprintf(w, "%s%s %d\n", c.name, key, atomic.LoadUint64(ptr))
		}
	}
	fmt.Fprintln(w)
}

func (m *MetricsCollector) writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)

	for _, key := range sortedKeys(&h.values) {
		val, _ := h.values.Load(key)
		hv, ok := val.(*histogramValue)
		if !ok {
			continue
		}
		hv.mu.Lock()
		cumulative := uint64(0)
		for i, bucket := range h.buckets {
			cumulative += hv.buckets[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLabel(key, "le", strconv.FormatFloat(bucket, 'g', -1, 64)), cumulative)
		}
		cumulative += hv.buckets[len(h.buckets)]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLabel(key, "le", "+Inf"), cumulative)

		fmt.Fprintf(w, "%s_sum%s %.6f\n", h.name, key, hv.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", h.name, key, hv.count)
		hv.mu.Unlock()
	}
	fmt.Fprintln(w)
}

func (m *MetricsCollector) writeGauge(w io.Writer, g *Gauge) {
	fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)

	for _, key := range sortedKeys(&g.values) {
		val, _ := g.values.Load(key)
		if ptr, ok := val.(*float64); ok {
			fmt.Fprintf(w, "%s%s %.6f\n", g.name, key, *ptr)
		}
	}
	fmt.Fprintln(w)
}

// withLabel appends name="value" to a rendered label set.
func withLabel(key, name, value string) string {
	pair := fmt.Sprintf("%s=\"%s\"", name, value)
	if key == "" {
		return "{" + pair + "}"
	}
	return key[:len(key)-1] + "," + pair + "}"
}

func labelsToKey(labels, values []string) string {
	if len(labels) == 0 || len(values) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(labels))
	for i, label := range labels {
		if i < len(values) {
			pairs = append(pairs, fmt.Sprintf("%s=%q", label, values[i]))
		}
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// Inc adds one to the counter
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add adds delta to the counter
func (c *Counter) Add(delta uint64, labelValues ...string) {
	key := labelsToKey(c.labels, labelValues)
	val, _ := c.values.LoadOrStore(key, new(uint64))
	atomic.AddUint64(val.(*uint64), delta)
}

// Value returns the current count for the label values.
func (c *Counter) Value(labelValues ...string) uint64 {
	val, ok := c.values.Load(labelsToKey(c.labels, labelValues))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(val.(*uint64))
}

// Observe records a value
func (h *Histogram) Observe(value float64, labelValues ...string) {
	key := labelsToKey(h.labels, labelValues)

	val, _ := h.values.LoadOrStore(key, &histogramValue{
		buckets: make([]uint64, len(h.buckets)+1), // +1 for +Inf
	})
	hv := val.(*histogramValue)

	hv.mu.Lock()
	defer hv.mu.Unlock()

	hv.sum += value
	hv.count++

	bucketIdx := len(h.buckets) // Default to +Inf
	for i, bound := range h.buckets {
		if value <= bound {
			bucketIdx = i
			break
		}
	}
	hv.buckets[bucketIdx]++
}

// Set sets the gauge
func (g *Gauge) Set(value float64, labelValues ...string) {
	key := labelsToKey(g.labels, labelValues)
	ptr := new(float64)
	*ptr = value
	g.values.Store(key, ptr)
}

// handleMetrics handles the /metrics endpoint
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.metrics.WritePrometheus(w)
}
