// Package pipeline runs the compliance analysis of a text and feeds chat
// messages into the session store.
//
// Run is pure with respect to shared state: detection, redaction and
// scoring all work from the same detection set. RunForSession adds the
// session update and then, outside the store lock, the journal append,
// metrics and escalation logging.
package pipeline

import (
	"sort"
	"time"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/journal"
	"pii-compliance-agent/internal/logger"
	"pii-compliance-agent/internal/metrics"
	"pii-compliance-agent/internal/pii"
	"pii-compliance-agent/internal/redact"
	"pii-compliance-agent/internal/session"
)

// Pipeline is safe for concurrent use.
type Pipeline struct {
	detector *pii.Detector
	store    *session.Store
	journal  journal.Journal
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithJournal sets the violation journal. The default keeps entries in memory.
func WithJournal(j journal.Journal) Option { return func(p *Pipeline) { p.journal = j } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(p *Pipeline) { p.log = l } }

// New returns a Pipeline over detector and store.
func New(detector *pii.Detector, store *session.Store, opts ...Option) *Pipeline {
	p := &Pipeline{detector: detector, store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.journal == nil {
		p.journal = journal.NewMemory(journal.DefaultMemoryCapacity)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.log == nil {
		p.log = logger.Discard()
	}
	return p
}

// Store returns the session store the pipeline writes to.
func (p *Pipeline) Store() *session.Store { return p.store }

// Journal returns the violation journal.
func (p *Pipeline) Journal() journal.Journal { return p.journal }

// Metrics returns the metrics sink.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// Run detects PII in text, redacts it, and scores the result.
func (p *Pipeline) Run(text string) compliance.Result {
	start := time.Now()

	detections := p.detector.Scan(text)
	result := compliance.Result{
		OriginalText:    text,
		RedactedText:    redact.Apply(text, detections),
		Detections:      detections,
		Score:           compliance.Score(detections),
		Recommendations: compliance.Recommendations(detections),
	}

	p.metrics.RecordScan(time.Since(start), detections)
	if result.HasPII() {
		p.log.Debugf("scan", "%d detection(s) %v score=%.2f", len(detections), categories(detections), result.Score)
	}
	return result
}

// RunForSession analyses msg.Content and records the message in its
// session. The returned result is the same one Run would produce.
func (p *Pipeline) RunForSession(msg session.ChatMessage) (compliance.Result, session.Outcome) {
	result := p.Run(msg.Content)
	out := p.store.Ingest(msg, result)

	p.metrics.RecordMessage(out.Created)
	if out.Created {
		p.log.Debugf("session_create", "session %s for user %s", out.SessionID, msg.UserID)
	}

	if v := out.Violation; v != nil {
		p.metrics.RecordViolation(v.Severity)
		p.appendJournal(msg, result, out)
	}

	if out.Escalated() {
		p.metrics.RecordEscalation()
		p.log.Warnf("risk_escalation", "session %s: %s -> %s", out.SessionID, out.PreviousRisk, out.RiskLevel)
	}
	return result, out
}

// appendJournal writes the violation with redacted text only. Failures are
// logged and counted; they never affect the returned result.
func (p *Pipeline) appendJournal(msg session.ChatMessage, result compliance.Result, out session.Outcome) {
	v := out.Violation
	err := p.journal.Append(journal.Entry{
		ViolationID:  v.ID,
		SessionID:    out.SessionID,
		UserID:       msg.UserID,
		MessageID:    msg.MessageID,
		Kind:         v.Kind,
		Severity:     v.Severity,
		Categories:   categories(result.Detections),
		Detections:   len(result.Detections),
		RedactedText: result.RedactedText,
		RiskLevel:    out.RiskLevel,
		CreatedAt:    v.CreatedAt,
	})
	if err != nil {
		p.metrics.RecordJournalError()
		p.log.Errorf("journal_append", "session %s violation %s: %v", out.SessionID, v.ID, err)
	}
}

// categories returns the distinct categories in ds, in category order.
func categories(ds []pii.Detection) []pii.Category {
	seen := make(map[pii.Category]bool, len(ds))
	out := make([]pii.Category, 0, len(ds))
	for _, d := range ds {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
