package compliance

import (
	"fmt"
	"strings"

	"pii-compliance-agent/internal/pii"
)

// Severity ranks how sensitive a category of PII is.
type Severity int

// Severity levels, ordered lowest to highest.
const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every level in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	for _, v := range Severities {
		if strings.EqualFold(v.String(), string(b)) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// severityTable holds the categories that differ from the Medium default.
var severityTable = map[pii.Category]Severity{
	pii.SocialSecurityNumber: SeverityCritical,
	pii.CreditCardNumber:     SeverityHigh,
	pii.Email:                SeverityMedium,
	pii.PhoneNumber:          SeverityMedium,
	pii.Address:              SeverityLow,
}

// SeverityOf returns the severity of a category.
func SeverityOf(c pii.Category) Severity {
	if s, ok := severityTable[c]; ok {
		return s
	}
	return SeverityMedium
}

// MaxSeverity returns the highest severity among the detections' categories,
// or SeverityLow when there are none.
func MaxSeverity(detections []pii.Detection) Severity {
	highest := SeverityLow
	for _, d := range detections {
		if s := SeverityOf(d.Category); s > highest {
			highest = s
		}
	}
	return highest
}
