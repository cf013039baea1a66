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

	"vip/internal/dispatch"
	"vip/internal/version"
)

// MetricsCollector collects and exposes Prometheus metrics
type MetricsCollector struct {
	// Counters
	requestsTotal      *Counter
	operationsTotal    *Counter
	validationFailures *Counter
	rateLimitExceeded  *Counter

	// Histograms
	requestDuration   *Histogram
	operationDuration *Histogram

	// Gauges
	queueLength *Gauge
	inFlight    *Gauge
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
	m := &MetricsCollector{
		startTime: time.Now(),
	}

	m.requestsTotal = &Counter{
		name:   "vip_http_requests_total",
		help:   "Total number of HTTP requests",
		labels: []string{"method", "route", "status"},
	}

	m.operationsTotal = &Counter{
		name:   "vip_operations_total",
		help:   "Total number of dispatched operations",
		labels: []string{"kind", "status"},
	}

	m.validationFailures = &Counter{
		name:   "vip_validation_failures_total",
		help:   "Total number of rejected prediction inputs",
		labels: []string{"field"},
	}

	m.rateLimitExceeded = &Counter{
		name:   "vip_ratelimit_exceeded_total",
		help:   "Total number of training requests refused by the rate limiter",
		labels: []string{},
	}

	m.requestDuration = &Histogram{
		name:    "vip_http_request_duration_seconds",
		help:    "Duration of HTTP requests in seconds",
		labels:  []string{"route"},
		buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}

	// Training can run for many minutes.
	m.operationDuration = &Histogram{
		name:    "vip_operation_duration_seconds",
		help:    "Duration of dispatched operations in seconds",
		labels:  []string{"kind"},
		buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 900, 3600},
	}

	m.queueLength = &Gauge{
		name:   "vip_dispatch_queue_length",
		help:   "Operations waiting for a worker",
		labels: []string{},
	}

	m.inFlight = &Gauge{
		name:   "vip_dispatch_in_flight",
		help:   "Operations currently running",
		labels: []string{},
	}

	m.goroutines = &Gauge{
		name:   "vip_goroutines",
		help:   "Number of goroutines",
		labels: []string{},
	}

	m.memoryAlloc = &Gauge{
		name:   "vip_memory_alloc_bytes",
		help:   "Allocated memory in bytes",
		labels: []string{},
	}

	return m
}

// ObserveRequest records one HTTP request.
func (m *MetricsCollector) ObserveRequest(method, path string, status int, duration time.Duration) {
	route := routeLabel(path)
	m.requestsTotal.Inc(methodLabel(method), route, strconv.Itoa(status))
	m.requestDuration.Observe(duration.Seconds(), route)
}

// ObserveCompletion records a finished dispatcher operation.
func (m *MetricsCollector) ObserveCompletion(c dispatch.Completion) {
	status := "succeeded"
	if c.Err != nil {
		status = "failed"
	}
	m.operationsTotal.Inc(c.Name, status)
	m.operationDuration.Observe(c.Duration().Seconds(), c.Name)
}

// RecordValidationFailure counts one rejected field.
func (m *MetricsCollector) RecordValidationFailure(field string) {
	m.validationFailures.Inc(field)
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *MetricsCollector) RecordRateLimitExceeded() {
	m.rateLimitExceeded.Inc()
}

// SetDispatchStats copies the dispatcher gauges.
func (m *MetricsCollector) SetDispatchStats(stats dispatch.Stats) {
	queued := stats.QueueLength
	for _, l := range stats.Lanes {
		queued += l.QueueLength
	}
	m.queueLength.Set(float64(queued))
	m.inFlight.Set(float64(stats.InFlight))
}

// methodLabel keeps the method label bounded.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions:
		return method
	default:
		return "other"
	}
}

// routeLabel keeps the route label bounded.
func routeLabel(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/train", path == "/runs", path == "/healthz", path == "/stats", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/runs/"):
		return "/runs/{id}"
	case strings.HasPrefix(path, "/static/"):
		return "/static"
	default:
		return "other"
	}
}

// WritePrometheus writes metrics in Prometheus text format
func (m *MetricsCollector) WritePrometheus(w io.Writer) {
	// Update runtime metrics
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryAlloc.Set(float64(memStats.Alloc))

	fmt.Fprintf(w, "# HELP vip_info vip build information\n")
	fmt.Fprintf(w, "# TYPE vip_info gauge\n")
	fmt.Fprintf(w, "vip_info{version=\"%s\"} 1\n\n", version.Version)

	fmt.Fprintf(w, "# HELP vip_uptime_seconds Time since vip started\n")
	fmt.Fprintf(w, "# TYPE vip_uptime_seconds counter\n")
	fmt.Fprintf(w, "vip_uptime_seconds %.3f\n\n", time.Since(m.startTime).Seconds())

	writeCounter(w, m.requestsTotal)
	writeCounter(w, m.operationsTotal)
	writeCounter(w, m.validationFailures)
	writeCounter(w, m.rateLimitExceeded)

	writeHistogram(w, m.requestDuration)
	writeHistogram(w, m.operationDuration)

	writeGauge(w, m.queueLength)
	writeGauge(w, m.inFlight)
	writeGauge(w, m.goroutines)
	writeGauge(w, m.memoryAlloc)
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

func writeCounter(w io.Writer, c *Counter) {
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

func writeHistogram(w io.Writer, h *Histogram) {
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
			fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLabel(key, "le", fmt.Sprintf("%g", bucket)), cumulative)
		}
		cumulative += hv.buckets[len(h.buckets)]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLabel(key, "le", "+Inf"), cumulative)

		fmt.Fprintf(w, "%s_sum%s %.6f\n", h.name, key, hv.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", h.name, key, hv.count)
		hv.mu.Unlock()
	}
	fmt.Fprintln(w)
}

func writeGauge(w io.Writer, g *Gauge) {
	fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)

	for _, key := range sortedKeys(&g.values) {
		val, _ := g.values.Load(key)
		if ptr, ok := val.(*float64); ok {
			fmt.Fprintf(w, "%s%s %g\n", g.name, key, *ptr)
		}
	}
	fmt.Fprintln(w)
}

// Inc adds one.
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add adds delta.
func (c *Counter) Add(delta uint64, labelValues ...string) {
	key := labelsToKey(c.labels, labelValues)
	val, _ := c.values.LoadOrStore(key, new(uint64))
	atomic.AddUint64(val.(*uint64), delta)
}

// Value returns the current count for the given label values.
func (c *Counter) Value(labelValues ...string) uint64 {
	val, ok := c.values.Load(labelsToKey(c.labels, labelValues))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(val.(*uint64))
}

// Observe adds a sample.
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

// Set replaces the value.
func (g *Gauge) Set(value float64, labelValues ...string) {
	key := labelsToKey(g.labels, labelValues)
	ptr := new(float64)
	*ptr = value
	g.values.Store(key, ptr)
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

// withLabel appends name="value" to a rendered label set.
func withLabel(key, name, value string) string {
	pair := fmt.Sprintf("%s=%q", name, value)
	if key == "" {
		return "{" + pair + "}"
	}
	return key[:len(key)-1] + "," + pair + "}"
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.SetDispatchStats(s.dispatcher.Stats())

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	s.metrics.WritePrometheus(w)
}
