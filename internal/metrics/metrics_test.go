package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
)

func dets(cats ...pii.Category) []pii.Detection {
	out := make([]pii.Detection, len(cats))
	for i, c := range cats {
		out[i] = pii.NewDetection(c, 0.9, 0, 1, "x")
	}
	return out
}

func TestNewStartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestNewInstancesDoNotCollide(t *testing.T) {
	// Each instance owns its registry, so constructing twice must not panic.
	a, b := New(), New()
	a.RecordJournalError()
	if got := testutil.ToFloat64(b.promJournalErrs); got != 0 {
		t.Errorf("instances share collectors: got %v", got)
	}
}

func TestRecordScan(t *testing.T) {
	m := New()
	m.RecordScan(2*time.Millisecond, dets(pii.Email, pii.Email, pii.SocialSecurityNumber))
	m.RecordScan(time.Millisecond, nil)

	s := m.Snapshot()
	if s.Scans.Total != 2 || s.Scans.WithPII != 1 {
		t.Errorf("scans: got total=%d withPii=%d", s.Scans.Total, s.Scans.WithPII)
	}
	if s.Scans.Detections["email"] != 2 || s.Scans.Detections["ssn"] != 1 {
		t.Errorf("detections: got %v", s.Scans.Detections)
	}
	if _, ok := s.Scans.Detections["phone"]; ok {
		t.Error("zero-count categories should be omitted")
	}

	if got := testutil.ToFloat64(m.promScans.WithLabelValues("true")); got != 1 {
		t.Errorf("prom scans{pii=true}: got %v", got)
	}
	if got := testutil.ToFloat64(m.promDetections.WithLabelValues("email")); got != 2 {
		t.Errorf("prom detections{email}: got %v", got)
	}
}

func TestScanLatencyPercentiles(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.RecordScan(time.Duration(i)*time.Millisecond, nil)
	}
	lat := m.Snapshot().ScanLatency

	if lat.Count != 100 {
		t.Fatalf("count: got %d, want 100", lat.Count)
	}
	within := func(got, want float64) bool { return got >= want*0.99 && got <= want*1.01 }
	if !within(lat.MinMs, 1) || !within(lat.MaxMs, 100) {
		t.Errorf("min/max: got %v/%v", lat.MinMs, lat.MaxMs)
	}
	if !within(lat.P50Ms, 50) {
		t.Errorf("p50: got %v, want ~50", lat.P50Ms)
	}
	if !within(lat.P99Ms, 99) {
		t.Errorf("p99: got %v, want ~99", lat.P99Ms)
	}
	if !within(lat.MeanMs, 50.5) {
		t.Errorf("mean: got %v, want ~50.5", lat.MeanMs)
	}
}

func TestLatencyOutOfRangeIsClamped(t *testing.T) {
	m := New()
	m.RecordScan(0, nil)
	m.RecordScan(10*time.Minute, nil)
	lat := m.Snapshot().ScanLatency
	if lat.Count != 2 {
		t.Fatalf("count: got %d, want 2", lat.Count)
	}
	if lat.MaxMs < 59_000 {
		t.Errorf("max should clamp near 60s, got %vms", lat.MaxMs)
	}
}

func TestEmptyLatencySnapshot(t *testing.T) {
	if lat := New().Snapshot().ScanLatency; lat != (LatencySnapshot{}) {
		t.Errorf("expected zero latency snapshot, got %+v", lat)
	}
}

func TestSessionCounters(t *testing.T) {
	m := New()
	m.RecordMessage(true)
	m.RecordMessage(false)
	m.RecordViolation(compliance.SeverityCritical)
	m.RecordViolation(compliance.SeverityHigh)
	m.RecordViolation(compliance.SeverityHigh)
	m.RecordEscalation()
	m.RecordJournalError()

	s := m.Snapshot().Sessions
	if s.Messages != 2 || s.Created != 1 {
		t.Errorf("messages/created: got %d/%d", s.Messages, s.Created)
	}
	if s.Violations["critical"] != 1 || s.Violations["high"] != 2 {
		t.Errorf("violations: got %v", s.Violations)
	}
	if s.Escalations != 1 || s.JournalErrors != 1 {
		t.Errorf("escalations/journal errors: got %d/%d", s.Escalations, s.JournalErrors)
	}
	if got := testutil.ToFloat64(m.promViolations.WithLabelValues("high")); got != 2 {
		t.Errorf("prom violations{high}: got %v", got)
	}
	if got := testutil.ToFloat64(m.promMessages); got != 2 {
		t.Errorf("prom messages: got %v", got)
	}
}

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/api/scan", http.StatusOK)
	m.RecordRequest("/api/scan", http.StatusUnauthorized)
	m.RecordRequest("/api/chat", http.StatusRequestEntityTooLarge)

	s := m.Snapshot().Requests
	if s.Total != 3 || s.Rejected != 2 {
		t.Errorf("requests: got total=%d rejected=%d", s.Total, s.Rejected)
	}
	if got := testutil.ToFloat64(m.promRequests.WithLabelValues("/api/scan", "401")); got != 1 {
		t.Errorf("prom requests{/api/scan,401}: got %v", got)
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New()
	m.RecordScan(time.Millisecond, dets(pii.CreditCardNumber))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`compliance_pii_detections_total{category="credit_card"} 1`,
		"compliance_scan_duration_seconds_count 1",
		`compliance_violations_total{severity="critical"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	m := New()
	m.RecordScan(time.Millisecond, dets(pii.Email))
	b, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"scans", "sessions", "requests", "scanLatency", "uptimeSecs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordScan(time.Microsecond*time.Duration(j+1), dets(pii.PhoneNumber))
				m.RecordMessage(false)
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Scans.Total != 1600 || s.Scans.Detections["phone"] != 1600 {
		t.Errorf("got total=%d phone=%d", s.Scans.Total, s.Scans.Detections["phone"])
	}
	if s.ScanLatency.Count != 1600 {
		t.Errorf("latency count: got %d", s.ScanLatency.Count)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.234, 1.23},
		{1.236, 1.24},
		{2.5, 2.5},
		{0, 0},
		{99.999, 100},
	}
	for _, c := range cases {
		if got := round2(c.in); got != c.want {
			t.Errorf("round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
