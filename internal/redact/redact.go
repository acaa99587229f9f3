// Package redact replaces detected PII spans with fixed category tokens.
package redact

import (
	"sort"
	"strings"

	"pii-compliance-agent/internal/pii"
)

// Fallback is used for any category without a token of its own.
const Fallback = "[REDACTED]"

var tokens = map[pii.Category]string{
	pii.Email:                "[EMAIL]",
	pii.PhoneNumber:          "[PHONE]",
	pii.SocialSecurityNumber: "[SSN]",
	pii.CreditCardNumber:     "[CC]",
	pii.IPAddress:            "[IP]",
	pii.DateOfBirth:          "[DOB]",
	pii.Address:              "[ADDRESS]",
	pii.Name:                 "[NAME]",
	pii.Unknown:              "[PII]",
}

// Token returns the replacement token for a category.
func Token(c pii.Category) string {
	if t, ok := tokens[c]; ok {
		return t
	}
	return Fallback
}

// Apply returns text with every detection replaced by its category token.
//
// Detections are applied left to right in Start order (stable on ties) while
// a signed offset tracks how far earlier replacements have shifted the text.
// A detection is skipped when its range is inverted, falls outside the text,
// or begins inside a span an earlier replacement already consumed. Apply
// never panics; an overlapping duplicate may be left unredacted.
func Apply(text string, detections []pii.Detection) string {
	if len(detections) == 0 || text == "" {
		return text
	}

	sorted := make([]pii.Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	b.Grow(len(text))

	// consumed is the end of the last replaced span in original offsets.
	consumed := 0
	offset := 0
	for _, d := range sorted {
		if d.Start < consumed || d.Start >= d.End {
			continue
		}
		adjStart, adjEnd := d.Start+offset, d.End+offset
		if adjStart < 0 || adjEnd > len(text)+offset {
			continue
		}

		tok := Token(d.Category)
		b.WriteString(text[consumed:d.Start])
		b.WriteString(tok)
		consumed = d.End
		offset += len(tok) - (d.End - d.Start)
	}
	b.WriteString(text[consumed:])
	return b.String()
}
