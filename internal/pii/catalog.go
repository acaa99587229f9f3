package pii

import (
	"fmt"
	"regexp"
)

// Base confidences assigned to every match of a pattern.
const (
	DefaultConfidence = 0.90
	HighConfidence    = 0.95
)

// Pattern pairs a compiled regex with the confidence given to its matches.
type Pattern struct {
	re         *regexp.Regexp
	confidence float64
}

// Regexp returns the compiled expression.
func (p Pattern) Regexp() *regexp.Regexp { return p.re }

// Confidence returns the base confidence of a match.
func (p Pattern) Confidence() float64 { return p.confidence }

// PatternSpec is the uncompiled form of a catalog entry.
type PatternSpec struct {
	Category   Category
	Expr       string
	Confidence float64
}

// BuiltinSpecs are the detection patterns shipped with the service.
// Name has no entry: names need context-aware detection and are accepted as
// false negatives.
var BuiltinSpecs = []PatternSpec{
	{Email, `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, DefaultConfidence},
	{PhoneNumber, `\b\d{3}[\-.]?\d{3}[\-.]?\d{4}\b`, DefaultConfidence},
	{PhoneNumber, `\(\d{3}\)\s*\d{3}[\-.]?\d{4}\b`, DefaultConfidence},
	{SocialSecurityNumber, `\b\d{3}-\d{2}-\d{4}\b`, HighConfidence},
	{CreditCardNumber, `\b\d{4}[\- ]?\d{4}[\- ]?\d{4}[\- ]?\d{4}\b`, DefaultConfidence},
	{IPAddress, `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`, DefaultConfidence},
	{DateOfBirth, `\b(?:0[1-9]|1[0-2])/(?:0[1-9]|[12]\d|3[01])/(?:19|20)\d{2}\b`, DefaultConfidence},
	{DateOfBirth, `\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`, DefaultConfidence},
	{Address, `\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`, DefaultConfidence},
}

// Catalog owns the compiled patterns for each category.
// It is read-only after construction and safe for concurrent use.
type Catalog struct {
	patterns map[Category][]Pattern
}

// NewCatalog compiles the given specs. Any compile failure is returned.
func NewCatalog(specs []PatternSpec) (*Catalog, error) {
	c := &Catalog{patterns: make(map[Category][]Pattern, len(Categories))}
	for _, s := range specs {
		re, err := regexp.Compile(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", s.Category, s.Expr, err)
		}
		c.patterns[s.Category] = append(c.patterns[s.Category], Pattern{re: re, confidence: s.Confidence})
	}
	return c, nil
}

// MustCatalog compiles the built-in patterns and panics if any fails.
// A broken built-in pattern is a programming error; the process cannot start.
func MustCatalog() *Catalog {
	c, err := NewCatalog(BuiltinSpecs)
	if err != nil {
		panic(err)
	}
	return c
}

// Patterns returns the patterns registered for a category, possibly none.
func (c *Catalog) Patterns(cat Category) []Pattern {
	return c.patterns[cat]
}

// Categories returns the categories that have at least one pattern,
// in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.patterns))
	for _, cat := range Categories {
		if len(c.patterns[cat]) > 0 {
			out = append(out, cat)
		}
	}
	return out
}
