package api

import (
	"time"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/pii"
	"pii-compliance-agent/internal/session"
)

// ScanRequest is the body of POST /api/scan.
type ScanRequest struct {
	Text string `json:"text"`
}

// ChatRequest is the body of POST /api/chat and each inbound /ws/chat frame.
// Missing session and message ids are generated.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	IsUser    *bool  `json:"is_user,omitempty"`
}

// Position is a half-open byte range.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DetectionResponse is one detection as returned by the API.
type DetectionResponse struct {
	Type       pii.Category `json:"type"`
	Value      string       `json:"value"`
	Confidence float64      `json:"confidence"`
	Position   Position     `json:"position"`
}

// ScanResponse is the analysis of one text.
type ScanResponse struct {
	Text            string              `json:"text"`
	PIIDetected     []DetectionResponse `json:"pii_detected"`
	ComplianceScore float64             `json:"compliance_score"`
	RedactedText    string              `json:"redacted_text"`
	Recommendations []string            `json:"recommendations"`
	Explanation     string              `json:"explanation"`
	ProcessingTime  int64               `json:"processing_time"` // milliseconds
}

// ChatResponse is the analysis of one chat message plus its session state.
type ChatResponse struct {
	ScanResponse
	SessionID        string             `json:"session_id"`
	MessageID        string             `json:"message_id"`
	SessionRiskLevel session.RiskLevel  `json:"session_risk_level"`
	Violation        *session.Violation `json:"violation,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newScanResponse(r compliance.Result, elapsed time.Duration) ScanResponse {
	dets := make([]DetectionResponse, len(r.Detections))
	for i, d := range r.Detections {
		dets[i] = DetectionResponse{
			Type:       d.Category,
			Value:      d.Text,
			Confidence: d.Confidence,
			Position:   Position{Start: d.Start, End: d.End},
		}
	}
	return ScanResponse{
		Text:            r.OriginalText,
		PIIDetected:     dets,
		ComplianceScore: r.Score,
		RedactedText:    r.RedactedText,
		Recommendations: r.Recommendations,
		Explanation:     Explain(r),
		ProcessingTime:  elapsed.Milliseconds(),
	}
}
