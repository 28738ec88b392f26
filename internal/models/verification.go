package models

import (
	"time"
)

// VerificationStatus is the verdict of a single document check, and also the
// derived case-level verdict.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"  // not yet attempted
	StatusVerified VerificationStatus = "verified" // scoring pass above threshold
	StatusFlagged  VerificationStatus = "flagged"  // scoring pass below threshold, needs human review
	StatusFailed   VerificationStatus = "failed"   // pipeline error, no score
)

// DocumentType is the identity document classification derived from the ID pattern
type DocumentType string

const (
	DocumentTypePAN     DocumentType = "PAN"
	DocumentTypeAadhaar DocumentType = "Aadhaar"
	DocumentTypeUnknown DocumentType = "Unknown"
)

// ExtractedFields holds the identity fields read from OCR text.
// A nil field means the extractor found nothing.
type ExtractedFields struct {
	Name     *string `json:"name"`
	IDNumber *string `json:"idNumber"`
	DOB      *string `json:"dob"`
}

// LogEntry is one line of the verification audit trail
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// VerificationResult is produced by one verification attempt and persisted
// onto the document it belongs to, replacing any previous result.
type VerificationResult struct {
	Status       VerificationStatus `json:"status"`
	Score        *float64           `json:"score,omitempty"` // nil when Status is failed
	Extracted    ExtractedFields    `json:"extractedData"`
	DetectedType DocumentType       `json:"detectedType,omitempty"`
	Logs         []LogEntry         `json:"logs"`
	Error        string             `json:"error,omitempty"`
	RawText      string             `json:"rawText,omitempty"`
	Engine       string             `json:"engine,omitempty"`
	VerifiedAt   *time.Time         `json:"verifiedAt,omitempty"`
}

// PendingResult is the pre-call default stored on a freshly uploaded document
func PendingResult() VerificationResult {
	return VerificationResult{
		Status: StatusPending,
		Logs:   []LogEntry{},
	}
}

// ClientProfile is the subset of the client record the matcher needs
type ClientProfile struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// StringPtr returns nil for an empty string, otherwise a pointer to s
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
