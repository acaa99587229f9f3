package session

import (
	"fmt"
	"strings"
	"time"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
)

// RiskLevel is the aggregate rating of a session. It is derived from the
// session's violations and never set by callers.
type RiskLevel int

// Risk levels, ordered lowest to highest.
const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = []string{"safe", "low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r >= RiskSafe && r <= RiskCritical {
		return riskNames[r]
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// MarshalText encodes the level by name.
func (r RiskLevel) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a level name.
func (r *RiskLevel) UnmarshalText(b []byte) error {
	for i, name := range riskNames {
		if strings.EqualFold(name, string(b)) {
			*r = RiskLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", b)
}

// ViolationKind classifies a compliance violation.
type ViolationKind string

// Violation kinds. Only PiiExposure is raised by message ingestion today.
const (
	PiiExposure        ViolationKind = "pii_exposure"
	DataRetention      ViolationKind = "data_retention"
	ConsentMissing     ViolationKind = "consent_missing"
	UnauthorizedAccess ViolationKind = "unauthorized_access"
	DataMinimization   ViolationKind = "data_minimization"
)

// ChatMessage is one inbound message of a conversation.
type ChatMessage struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
}

// Violation records PII found in a session. Violations are append-only.
type Violation struct {
	ID        string              `json:"id"`
	Kind      ViolationKind       `json:"kind"`
	Severity  compliance.Severity `json:"severity"`
	Message   string              `json:"message"`
	Detected  []pii.Detection     `json:"detected"`
	CreatedAt time.Time           `json:"created_at"`
}

// ChatSession is a conversation's message and violation history.
type ChatSession struct {
	SessionID  string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	Messages   []ChatMessage `json:"messages"`
	Violations []Violation   `json:"violations"`
	RiskLevel  RiskLevel     `json:"risk_level"`
}

// Summary is a compact view of a session for listings.
type Summary struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	MessageCount   int       `json:"message_count"`
	ViolationCount int       `json:"violation_count"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// clone returns a deep copy that shares no slices with s.
func (s *ChatSession) clone() ChatSession {
	out := ChatSession{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		RiskLevel: s.RiskLevel,
		Messages:  make([]ChatMessage, len(s.Messages)),
	}
	copy(out.Messages, s.Messages)
	out.Violations = make([]Violation, len(s.Violations))
	for i, v := range s.Violations {
		v.Detected = append([]pii.Detection(nil), v.Detected...)
		out.Violations[i] = v
	}
	return out
}

// riskLevel derives the session rating from its full violation history.
func riskLevel(violations []Violation) RiskLevel {
	if len(violations) == 0 {
		return RiskSafe
	}
	var critical, high int
	for _, v := range violations {
		switch v.Severity {
		case compliance.SeverityCritical:
			critical++
		case compliance.SeverityHigh:
			high++
		}
	}
	switch {
	case critical > 0:
		return RiskCritical
	case high > 2:
		return RiskHigh
	case high > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}
