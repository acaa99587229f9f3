package api

import (
	"fmt"

	"pii-compliance-agent/internal/compliance"
)

// goodScore is the score at or above which findings are reported as
// reviewable rather than urgent.
const goodScore = 0.8

// Explain returns a one-line, human-readable summary of a result.
func Explain(r compliance.Result) string {
	n := len(r.Detections)
	switch {
	case n == 0:
		return "No PII detected in the text. This content appears to be safe for sharing."
	case r.Score >= goodScore:
		return fmt.Sprintf("Found %d PII item(s) but with good compliance score (%.1f%%). Consider reviewing the detected information.",
			n, r.Score*100)
	default:
		return fmt.Sprintf("Found %d PII item(s) with low compliance score (%.1f%%). Immediate action recommended to protect sensitive information.",
			n, r.Score*100)
	}
}
