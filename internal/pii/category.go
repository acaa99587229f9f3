// Package pii classifies personally identifiable information in free text.
//
// A Catalog holds the compiled patterns for each Category. A Detector runs
// every pattern of the catalog over a text and returns one Detection per
// match, with byte offsets into the text it was given.
package pii

import "fmt"

// Category classifies the kind of sensitive data found.
type Category int

// Supported categories. The order is used to break ties when sorting
// detections that start at the same offset.
const (
	Email Category = iota
	PhoneNumber
	SocialSecurityNumber
	CreditCardNumber
	IPAddress
	DateOfBirth
	Address
	Name
	Unknown
)

// Categories lists every category in declaration order.
var Categories = []Category{
	Email, PhoneNumber, SocialSecurityNumber, CreditCardNumber,
	IPAddress, DateOfBirth, Address, Name, Unknown,
}

var categoryNames = map[Category]string{
	Email:                "email",
	PhoneNumber:          "phone",
	SocialSecurityNumber: "ssn",
	CreditCardNumber:     "credit_card",
	IPAddress:            "ip_address",
	DateOfBirth:          "dob",
	Address:              "address",
	Name:                 "name",
	Unknown:              "unknown",
}

// String returns the wire name of the category.
func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category as its wire name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a wire name. Unrecognised names decode to Unknown.
func (c *Category) UnmarshalText(b []byte) error {
	*c = ParseCategory(string(b))
	return nil
}

// ParseCategory maps a wire name back to its Category, defaulting to Unknown.
func ParseCategory(s string) Category {
	for c, name := range categoryNames {
		if name == s {
			return c
		}
	}
	return Unknown
}

// Detection is one matched span of PII in a source text.
// Start and End are byte offsets into the text that was scanned.
type Detection struct {
	Category   Category `json:"type"`
	Confidence float64  `json:"confidence"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Text       string   `json:"value"`
}

// NewDetection builds a Detection, clamping confidence into [0, 1].
func NewDetection(c Category, confidence float64, start, end int, text string) Detection {
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Detection{
		Category:   c,
		Confidence: confidence,
		Start:      start,
		End:        end,
		Text:       text,
	}
}
