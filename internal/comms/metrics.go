package comms

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-channel counters and a response-time sample vector,
// both as the in-process Snapshot() the coordinator consults directly and
// as Prometheus series any scraper can read (spec.md §4.3).
type Metrics struct {
	name string

	mu      sync.Mutex
	total   int64
	success int64
	failure int64
	samples []time.Duration // bounded ring of recent latencies

	promTotal    prometheus.Counter
	promFailures prometheus.Counter
	promLatency  prometheus.Summary
}

const maxSamples = 1000

// NewMetrics registers (or reuses, if already registered) Prometheus series
// scoped to name and returns a Metrics tracker for it.
func NewMetrics(name string) *Metrics {
	m := &Metrics{
		name: name,
		promTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "conductor_comms_requests_total",
			Help:        "Total requests issued by a communications channel.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		promFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "conductor_comms_failures_total",
			Help:        "Total failed requests for a communications channel.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		promLatency: prometheus.NewSummary(prometheus.SummaryOpts{
			Name:        "conductor_comms_latency_seconds",
			Help:        "Observed latency of upstream completions.",
			ConstLabels: prometheus.Labels{"channel": name},
			Objectives:  map[float64]float64{0.5: 0.05, 0.95: 0.01, 0.99: 0.001},
		}),
	}
	_ = prometheus.Register(m.promTotal)
	_ = prometheus.Register(m.promFailures)
	_ = prometheus.Register(m.promLatency)
	return m
}

// Observe records the outcome and latency of one request.
func (m *Metrics) Observe(d time.Duration, err error) {
	m.mu.Lock()
	m.total++
	if err != nil {
		m.failure++
	} else {
		m.success++
	}
	m.samples = append(m.samples, d)
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
	m.mu.Unlock()

	m.promTotal.Inc()
	if err != nil {
		m.promFailures.Inc()
	}
	m.promLatency.Observe(d.Seconds())
}

// Snapshot is a programmatic summary of a channel's observed latencies.
type Snapshot struct {
	Total   int64
	Success int64
	Failure int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// Snapshot computes percentiles over the current sample window.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Total: m.total, Success: m.success, Failure: m.failure}
	if len(m.samples) == 0 {
		return s
	}

	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Avg = sum / time.Duration(len(sorted))
	s.P50 = percentile(sorted, 0.50)
	s.P95 = percentile(sorted, 0.95)
	s.P99 = percentile(sorted, 0.99)
	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
