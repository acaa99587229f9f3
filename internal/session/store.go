// Package session keeps the per-conversation message and violation history
// and derives each session's risk level.
//
// Store is the only shared mutable state of the service. A single mutex
// guards the whole map: fetch-or-create, append and risk recomputation run
// as one unit so concurrent messages for the same session cannot interleave
// a log append with a stale risk level. No I/O happens under the lock.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
)

// Outcome reports what one Ingest call changed.
type Outcome struct {
	SessionID    string
	Created      bool       // session did not exist before this message
	Violation    *Violation // nil when the message carried no PII
	PreviousRisk RiskLevel
	RiskLevel    RiskLevel
}

// Escalated reports whether the session's risk level rose.
func (o Outcome) Escalated() bool { return o.RiskLevel > o.PreviousRisk }

// Store maps session ids to sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*ChatSession
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for violation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how violation ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*ChatSession),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends msg to its session, creating the session on first use.
// When result carries detections a PiiExposure violation is recorded and the
// session's risk level is recomputed over its entire violation history.
func (s *Store) Ingest(msg ChatMessage, result compliance.Result) Outcome {
	var v *Violation
	if result.HasPII() {
		v = &Violation{
			ID:       s.newID(),
			Kind:     PiiExposure,
			Severity: compliance.MaxSeverity(result.Detections),
			Message:  fmt.Sprintf("%d PII item(s) detected in message: %s", len(result.Detections), msg.Content),
			Detected: append([]pii.Detection(nil), result.Detections...),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[msg.SessionID]
	if !ok {
		sess = &ChatSession{
			SessionID:  msg.SessionID,
			UserID:     msg.UserID,
			Messages:   []ChatMessage{},
			Violations: []Violation{},
			RiskLevel:  RiskSafe,
		}
		s.sessions[msg.SessionID] = sess
	}

	out := Outcome{
		SessionID:    msg.SessionID,
		Created:      !ok,
		PreviousRisk: sess.RiskLevel,
	}

	sess.Messages = append(sess.Messages, msg)
	if v != nil {
		v.CreatedAt = s.now()
		sess.Violations = append(sess.Violations, *v)
		sess.RiskLevel = riskLevel(sess.Violations)
		recorded := *v
		recorded.Detected = append([]pii.Detection(nil), v.Detected...)
		out.Violation = &recorded
	}
	out.RiskLevel = sess.RiskLevel
	return out
}

// Get returns a copy of the session, or ok == false if it does not exist.
// The copy shares no memory with the store.
func (s *Store) Get(sessionID string) (ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ChatSession{}, false
	}
	return sess.clone(), true
}

// List returns a summary of every session, sorted by session id.
func (s *Store) List() []Summary {
	s.mu.Lock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Summary{
			SessionID:      sess.SessionID,
			UserID:         sess.UserID,
			MessageCount:   len(sess.Messages),
			ViolationCount: len(sess.Violations),
			RiskLevel:      sess.RiskLevel,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
