// Package compliance scores a detection set and ranks the severity of the
// PII it contains.
//
// Score and Recommendations are pure functions of their input. At fixed
// confidences, adding detections never raises the score.
package compliance

import (
	"fmt"
	"sort"

	"pii-compliance-agent/internal/pii"
)

// Score bounds.
const (
	perDetectionPenalty = 0.1
	maxPenalty          = 0.5
)

// Fixed recommendation lines.
const (
	RecommendCompliant = "No PII detected - text is compliant"
	RecommendRedact    = "Apply real-time redaction before sharing or storing this text"
	RecommendLog       = "Log the compliance violation for audit"
)

// Result is the outcome of scanning one text. It is built once and not
// modified afterwards.
type Result struct {
	OriginalText    string          `json:"original_text"`
	RedactedText    string          `json:"redacted_text"`
	Detections      []pii.Detection `json:"detected_pii"`
	Score           float64         `json:"compliance_score"`
	Recommendations []string        `json:"recommendations"`
}

// HasPII reports whether any detection was made.
func (r Result) HasPII() bool { return len(r.Detections) > 0 }

// Score reduces detections to a compliance score in [0, 1].
// No detections scores 1.0. Otherwise the mean confidence is reduced by
// 0.1 per detection, capped at 0.5, and floored at 0.
func Score(detections []pii.Detection) float64 {
	if len(detections) == 0 {
		return 1.0
	}
	var sum float64
	for _, d := range detections {
		sum += d.Confidence
	}
	avg := sum / float64(len(detections))

	penalty := perDetectionPenalty * float64(len(detections))
	if penalty > maxPenalty {
		penalty = maxPenalty
	}

	score := avg - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Recommendations returns advisory lines for a detection set: one per
// distinct category in Category order, followed by the redaction and
// logging lines.
func Recommendations(detections []pii.Detection) []string {
	if len(detections) == 0 {
		return []string{RecommendCompliant}
	}

	counts := make(map[pii.Category]int)
	for _, d := range detections {
		counts[d.Category]++
	}

	cats := make([]pii.Category, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	out := make([]string, 0, len(cats)+2)
	for _, c := range cats {
		out = append(out, fmt.Sprintf("Found %d %s item(s) (severity: %s) - consider redaction or masking", counts[c], c, SeverityOf(c)))
	}
	return append(out, RecommendRedact, RecommendLog)
}
