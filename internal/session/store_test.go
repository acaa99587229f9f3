package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
)

func message(sessionID, content string) ChatMessage {
	return ChatMessage{
		UserID:    "user-1",
		SessionID: sessionID,
		MessageID: fmt.Sprintf("m-%d", time.Now().UnixNano()),
		CreatedAt: time.Now(),
		Content:   content,
		IsUser:    true,
	}
}

func resultWith(cats ...pii.Category) compliance.Result {
	ds := make([]pii.Detection, len(cats))
	for i, c := range cats {
		ds[i] = pii.NewDetection(c, 0.9, 0, 4, "xxxx")
	}
	return compliance.Result{
		Detections: ds,
		Score:      compliance.Score(ds),
	}
}

func TestIngestCreatesSessionLazily(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("s1"); ok {
		t.Fatal("unknown session should be absent")
	}

	out := s.Ingest(message("s1", "hello"), resultWith())
	if !out.Created {
		t.Error("first ingest should create the session")
	}
	if out.Violation != nil {
		t.Error("clean message should not record a violation")
	}

	sess, ok := s.Get("s1")
	if !ok {
		t.Fatal("session missing after ingest")
	}
	if sess.RiskLevel != RiskSafe {
		t.Errorf("risk: got %s, want safe", sess.RiskLevel)
	}
	if len(sess.Messages) != 1 || len(sess.Violations) != 0 {
		t.Errorf("got %d messages, %d violations", len(sess.Messages), len(sess.Violations))
	}
	if sess.UserID != "user-1" {
		t.Errorf("user id: got %q", sess.UserID)
	}

	if out := s.Ingest(message("s1", "again"), resultWith()); out.Created {
		t.Error("second ingest should reuse the session")
	}
}

func TestIngestSSNIsCritical(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return fixed }), WithIDGenerator(func() string { return "v-1" }))

	out := s.Ingest(message("s1", "SSN: 123-45-6789"), resultWith(pii.SocialSecurityNumber))
	if out.RiskLevel != RiskCritical {
		t.Errorf("risk: got %s, want critical", out.RiskLevel)
	}
	if !out.Escalated() {
		t.Error("safe -> critical should count as escalation")
	}
	if out.Violation == nil {
		t.Fatal("expected a violation")
	}
	v := out.Violation
	if v.ID != "v-1" || v.Kind != PiiExposure || v.Severity != compliance.SeverityCritical {
		t.Errorf("unexpected violation %+v", v)
	}
	if !v.CreatedAt.Equal(fixed) {
		t.Errorf("created_at: got %v, want %v", v.CreatedAt, fixed)
	}
	if !strings.Contains(v.Message, "SSN: 123-45-6789") {
		t.Errorf("violation message should include content: %q", v.Message)
	}
}

func TestThreeHighViolationsEscalateToHigh(t *testing.T) {
	s := NewStore()
	cc := resultWith(pii.CreditCardNumber)

	s.Ingest(message("s1", "card 1"), cc)
	s.Ingest(message("s1", "card 2"), cc)
	sess, _ := s.Get("s1")
	if sess.RiskLevel != RiskMedium {
		t.Fatalf("after two high violations: got %s, want medium", sess.RiskLevel)
	}

	s.Ingest(message("s1", "card 3"), cc)
	sess, _ = s.Get("s1")
	if sess.RiskLevel != RiskHigh {
		t.Errorf("after three high violations: got %s, want high", sess.RiskLevel)
	}
}

func TestRiskLevelRules(t *testing.T) {
	v := func(s compliance.Severity) Violation { return Violation{Severity: s} }
	cases := []struct {
		name string
		in   []Violation
		want RiskLevel
	}{
		{"none", nil, RiskSafe},
		{"one low", []Violation{v(compliance.SeverityLow)}, RiskLow},
		{"mediums", []Violation{v(compliance.SeverityMedium), v(compliance.SeverityMedium)}, RiskLow},
		{"one high", []Violation{v(compliance.SeverityHigh)}, RiskMedium},
		{"two high", []Violation{v(compliance.SeverityHigh), v(compliance.SeverityHigh)}, RiskMedium},
		{"three high", []Violation{v(compliance.SeverityHigh), v(compliance.SeverityHigh), v(compliance.SeverityHigh)}, RiskHigh},
		{"critical wins", []Violation{v(compliance.SeverityLow), v(compliance.SeverityCritical)}, RiskCritical},
	}
	for _, c := range cases {
		if got := riskLevel(c.in); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestRiskNeverDecreasesOnEscalatingMessage(t *testing.T) {
	s := NewStore()
	steps := []pii.Category{pii.Address, pii.Email, pii.CreditCardNumber, pii.SocialSecurityNumber}
	prev := RiskSafe
	for _, c := range steps {
		out := s.Ingest(message("s1", "x"), resultWith(c))
		if out.RiskLevel < prev {
			t.Fatalf("risk dropped from %s to %s after %s", prev, out.RiskLevel, c)
		}
		prev = out.RiskLevel
	}
	if prev != RiskCritical {
		t.Errorf("final risk: got %s, want critical", prev)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewStore()
	s.Ingest(message("s1", "mail a@b.io"), resultWith(pii.Email))

	snap, _ := s.Get("s1")
	snap.Messages[0].Content = "tampered"
	snap.Violations[0].Detected[0].Text = "tampered"
	snap.RiskLevel = RiskCritical

	again, _ := s.Get("s1")
	if again.Messages[0].Content == "tampered" {
		t.Error("message log shared with caller")
	}
	if again.Violations[0].Detected[0].Text == "tampered" {
		t.Error("violation detections shared with caller")
	}
	if again.RiskLevel != RiskLow {
		t.Errorf("risk: got %s, want low", again.RiskLevel)
	}
}

func TestIngestCopiesDetections(t *testing.T) {
	s := NewStore()
	res := resultWith(pii.Email)
	s.Ingest(message("s1", "x"), res)
	res.Detections[0].Text = "changed"

	sess, _ := s.Get("s1")
	if sess.Violations[0].Detected[0].Text == "changed" {
		t.Error("store kept a reference to the caller's detections")
	}
}

func TestConcurrentIngestSameSession(t *testing.T) {
	s := NewStore()
	const workers, perWorker = 16, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				res := resultWith()
				if i%5 == 0 {
					res = resultWith(pii.CreditCardNumber)
				}
				s.Ingest(message("shared", fmt.Sprintf("w%d-%d", w, i)), res)
			}
		}(w)
	}
	wg.Wait()

	sess, ok := s.Get("shared")
	if !ok {
		t.Fatal("shared session missing")
	}
	if len(sess.Messages) != workers*perWorker {
		t.Errorf("messages: got %d, want %d", len(sess.Messages), workers*perWorker)
	}
	if len(sess.Violations) != workers*perWorker/5 {
		t.Errorf("violations: got %d, want %d", len(sess.Violations), workers*perWorker/5)
	}
	if sess.RiskLevel != riskLevel(sess.Violations) {
		t.Errorf("risk %s inconsistent with history", sess.RiskLevel)
	}
}

func TestListSortedSummaries(t *testing.T) {
	s := NewStore()
	s.Ingest(message("b", "x"), resultWith(pii.CreditCardNumber))
	s.Ingest(message("a", "x"), resultWith())
	s.Ingest(message("a", "y"), resultWith())

	got := s.List()
	if len(got) != 2 || s.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].SessionID != "a" || got[1].SessionID != "b" {
		t.Errorf("not sorted: %+v", got)
	}
	if got[0].MessageCount != 2 || got[0].RiskLevel != RiskSafe {
		t.Errorf("summary a: %+v", got[0])
	}
	if got[1].ViolationCount != 1 || got[1].RiskLevel != RiskMedium {
		t.Errorf("summary b: %+v", got[1])
	}
}

func TestRiskLevelText(t *testing.T) {
	for i := RiskSafe; i <= RiskCritical; i++ {
		b, _ := i.MarshalText()
		var back RiskLevel
		if err := back.UnmarshalText(b); err != nil || back != i {
			t.Errorf("round trip %s: got %s, err %v", i, back, err)
		}
	}
}
