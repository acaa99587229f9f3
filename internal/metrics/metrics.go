// Package metrics provides the runtime counters of the compliance service.
//
// Every event is recorded twice: into lock-free atomics that back the JSON
// Snapshot served on /stats, and into Prometheus collectors on a private
// registry served on /metrics. Scan latency additionally feeds an HDR
// histogram so the snapshot can report percentiles.
package metrics

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
)

// Latency histogram range in microseconds: 1us to 60s, 3 significant figures.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics holds all counters for a running service. Use New; the zero
// value is not valid.
type Metrics struct {
	ScansTotal       atomic.Int64
	ScansWithPII     atomic.Int64
	MessagesIngested atomic.Int64
	SessionsCreated  atomic.Int64
	Escalations      atomic.Int64
	JournalErrors    atomic.Int64
	RequestsTotal    atomic.Int64
	RequestsRejected atomic.Int64

	// Written only in New; concurrent reads need no lock.
	detections map[pii.Category]*atomic.Int64
	violations map[compliance.Severity]*atomic.Int64

	latencyMu sync.Mutex
	latency   *hdrhistogram.Histogram

	registry        *prometheus.Registry
	promScans       *prometheus.CounterVec
	promDetections  *prometheus.CounterVec
	promMessages    prometheus.Counter
	promViolations  *prometheus.CounterVec
	promJournalErrs prometheus.Counter
	promRequests    *prometheus.CounterVec
	promScanSeconds prometheus.Histogram

	startTime time.Time
}

// New returns Metrics with per-category and per-severity counters
// pre-populated and all Prometheus collectors registered.
func New() *Metrics {
	m := &Metrics{
		detections: make(map[pii.Category]*atomic.Int64, len(pii.Categories)),
		violations: make(map[compliance.Severity]*atomic.Int64, len(compliance.Severities)),
		latency:    hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		registry:   prometheus.NewRegistry(),
		startTime:  time.Now(),
	}
	for _, c := range pii.Categories {
		m.detections[c] = new(atomic.Int64)
	}
	for _, s := range compliance.Severities {
		m.violations[s] = new(atomic.Int64)
	}

	m.promScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_scans_total",
		Help: "Texts scanned, labelled by whether PII was found",
	}, []string{"pii"})
	m.promDetections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_pii_detections_total",
		Help: "PII detections by category",
	}, []string{"category"})
	m.promMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compliance_messages_ingested_total",
		Help: "Chat messages appended to sessions",
	})
	m.promViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_violations_total",
		Help: "Violations recorded by severity",
	}, []string{"severity"})
	m.promJournalErrs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compliance_journal_errors_total",
		Help: "Failed violation journal appends",
	})
	m.promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_api_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})
	m.promScanSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_scan_duration_seconds",
		Help:    "Detection, redaction and scoring time per text",
		Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	m.registry.MustRegister(
		m.promScans,
		m.promDetections,
		m.promMessages,
		m.promViolations,
		m.promJournalErrs,
		m.promRequests,
		m.promScanSeconds,
	)

	// Pre-initialize labels so series exist before the first event.
	for _, c := range pii.Categories {
		m.promDetections.WithLabelValues(c.String())
	}
	for _, s := range compliance.Severities {
		m.promViolations.WithLabelValues(s.String())
	}
	m.promScans.WithLabelValues("true")
	m.promScans.WithLabelValues("false")

	return m
}

// RecordScan records one completed scan and its detections.
func (m *Metrics) RecordScan(d time.Duration, detections []pii.Detection) {
	m.ScansTotal.Add(1)
	hasPII := len(detections) > 0
	if hasPII {
		m.ScansWithPII.Add(1)
	}
	m.promScans.WithLabelValues(strconv.FormatBool(hasPII)).Inc()

	for _, det := range detections {
		if c, ok := m.detections[det.Category]; ok {
			c.Add(1)
		}
		m.promDetections.WithLabelValues(det.Category.String()).Inc()
	}

	m.promScanSeconds.Observe(d.Seconds())

	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	} else if us > maxLatencyUs {
		us = maxLatencyUs
	}
	m.latencyMu.Lock()
	_ = m.latency.RecordValue(us) // in range after clamping
	m.latencyMu.Unlock()
}

// RecordMessage records one ingested chat message.
func (m *Metrics) RecordMessage(createdSession bool) {
	m.MessagesIngested.Add(1)
	m.promMessages.Inc()
	if createdSession {
		m.SessionsCreated.Add(1)
	}
}

// RecordViolation records one violation at the given severity.
func (m *Metrics) RecordViolation(s compliance.Severity) {
	if c, ok := m.violations[s]; ok {
		c.Add(1)
	}
	m.promViolations.WithLabelValues(s.String()).Inc()
}

// RecordEscalation records a session risk level increase.
func (m *Metrics) RecordEscalation() { m.Escalations.Add(1) }

// RecordJournalError records a failed journal append.
func (m *Metrics) RecordJournalError() {
	m.JournalErrors.Add(1)
	m.promJournalErrs.Inc()
}

// RecordRequest records one API request. Status 401 and 413 count as
// rejected.
func (m *Metrics) RecordRequest(route string, status int) {
	m.RequestsTotal.Add(1)
	if status == http.StatusUnauthorized || status == http.StatusRequestEntityTooLarge {
		m.RequestsRejected.Add(1)
	}
	m.promRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the Prometheus exposition of this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Snapshot returns a point-in-time copy of all counters, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.latencyMu.Lock()
	lat := latencySnapshot(m.latency)
	m.latencyMu.Unlock()

	detections := make(map[string]int64, len(m.detections))
	for c, n := range m.detections {
		if v := n.Load(); v > 0 {
			detections[c.String()] = v
		}
	}
	violations := make(map[string]int64, len(m.violations))
	for s, n := range m.violations {
		if v := n.Load(); v > 0 {
			violations[s.String()] = v
		}
	}

	return Snapshot{
		Scans: ScanSnapshot{
			Total:      m.ScansTotal.Load(),
			WithPII:    m.ScansWithPII.Load(),
			Detections: detections,
		},
		Sessions: SessionSnapshot{
			Messages:      m.MessagesIngested.Load(),
			Created:       m.SessionsCreated.Load(),
			Violations:    violations,
			Escalations:   m.Escalations.Load(),
			JournalErrors: m.JournalErrors.Load(),
		},
		Requests: RequestSnapshot{
			Total:    m.RequestsTotal.Load(),
			Rejected: m.RequestsRejected.Load(),
		},
		ScanLatency: lat,
		UptimeSecs:  time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Scans       ScanSnapshot    `json:"scans"`
	Sessions    SessionSnapshot `json:"sessions"`
	Requests    RequestSnapshot `json:"requests"`
	ScanLatency LatencySnapshot `json:"scanLatency"`
	UptimeSecs  float64         `json:"uptimeSecs"`
}

// ScanSnapshot holds scan volume. Only categories with non-zero counts appear.
type ScanSnapshot struct {
	Total      int64            `json:"total"`
	WithPII    int64            `json:"withPii"`
	Detections map[string]int64 `json:"detections,omitempty"`
}

// SessionSnapshot holds chat ingestion counters.
type SessionSnapshot struct {
	Messages      int64            `json:"messages"`
	Created       int64            `json:"created"`
	Violations    map[string]int64 `json:"violations,omitempty"`
	Escalations   int64            `json:"escalations"`
	JournalErrors int64            `json:"journalErrors"`
}

// RequestSnapshot holds API request counters.
type RequestSnapshot struct {
	Total    int64 `json:"total"`
	Rejected int64 `json:"rejected"`
}

// LatencySnapshot summarises scan latency in milliseconds.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P99Ms  float64 `json:"p99Ms"`
	MaxMs  float64 `json:"maxMs"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func usToMs(us int64) float64 { return round2(float64(us) / 1000.0) }

func latencySnapshot(h *hdrhistogram.Histogram) LatencySnapshot {
	if h.TotalCount() == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  h.TotalCount(),
		MinMs:  usToMs(h.Min()),
		MeanMs: round2(h.Mean() / 1000.0),
		P50Ms:  usToMs(h.ValueAtQuantile(50)),
		P99Ms:  usToMs(h.ValueAtQuantile(99)),
		MaxMs:  usToMs(h.Max()),
	}
}
