package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// DefaultRequiredDocuments is the document checklist per client category
// used when configuration does not provide one.
var DefaultRequiredDocuments = map[string][]string{
	models.CategorySalaried: {
		"PAN Card",
		"Aadhaar Card",
		"Form 16",
		"Passbook",
	},
	models.CategorySmallBusiness: {
		"Bank Statement (Annual)",
		"TDS Quarterly",
		"TDS Monthly Challan",
		"GST Return (Monthly/Annually)",
		"Annual Income Statement",
		"P&L Balance Sheet",
	},
}

// IsIdentityDocument reports whether a document label names a PAN or
// Aadhaar card. Only identity documents have to pass KYC verification; the
// rest of the checklist is satisfied by an upload.
func IsIdentityDocument(label string) bool {
	l := strings.ToLower(label)
	if strings.Contains(l, "aadhar") || strings.Contains(l, "aadhaar") {
		return true
	}
	words := strings.FieldsFunc(l, func(r rune) bool { return !unicode.IsLetter(r) })
	return slices.Contains(words, "pan")
}

// Requirement is one line of a case's document checklist
type Requirement struct {
	Label    string                    `json:"label"`
	Identity bool                      `json:"identity"`
	Uploaded bool                      `json:"uploaded"`
	Status   models.VerificationStatus `json:"status,omitempty"`
}

// Satisfied reports whether the requirement no longer blocks the case
func (r Requirement) Satisfied() bool {
	if r.Identity {
		return r.Status == models.StatusVerified
	}
	return r.Uploaded
}

// Readiness summarizes a case's checklist
type Readiness struct {
	CaseID       string        `json:"caseId"`
	Category     string        `json:"category"`
	Requirements []Requirement `json:"requirements"`
	Ready        bool          `json:"ready"`    // every required document uploaded
	Verified     bool          `json:"verified"` // identity documents verified, the rest uploaded
}

// Workflow moves cases along the kanban when their documents are in order
type Workflow struct {
	store       CaseStore
	required    map[string][]string
	autoAdvance bool
}

// NewWorkflow creates the workflow engine. A nil or empty required map
// uses DefaultRequiredDocuments.
func NewWorkflow(store CaseStore, required map[string][]string, autoAdvance bool) *Workflow {
	if len(required) == 0 {
		required = DefaultRequiredDocuments
	}
	return &Workflow{store: store, required: required, autoAdvance: autoAdvance}
}

// RequiredDocuments returns the checklist for a category, nil when unknown
func (w *Workflow) RequiredDocuments(category string) []string {
	return w.required[category]
}

// Readiness evaluates the checklist of a case
func (w *Workflow) Readiness(c *models.Case) Readiness {
	labels := w.RequiredDocuments(c.Category)
	r := Readiness{
		CaseID:       c.ID,
		Category:     c.Category,
		Requirements: make([]Requirement, 0, len(labels)),
		Ready:        len(labels) > 0,
		Verified:     len(labels) > 0,
	}

	for _, label := range labels {
		req := Requirement{Label: label, Identity: IsIdentityDocument(label)}
		if doc, ok := c.Document(label); ok {
			req.Uploaded = true
			req.Status = doc.Verification.Status
		}
		if !req.Uploaded {
			r.Ready = false
		}
		if !req.Satisfied() {
			r.Verified = false
		}
		r.Requirements = append(r.Requirements, req)
	}
	return r
}

// Advance re-reads the case and moves it from onboarded or documentation to
// itr-filling once every required identity document is verified, the other
// required documents are uploaded and the case-level
// verdict is not flagged. It reports whether the case moved.
func (w *Workflow) Advance(ctx context.Context, caseID string) (bool, error) {
	if !w.autoAdvance {
		return false, nil
	}

	c, err := w.store.GetCase(ctx, caseID)
	if err != nil {
		return false, fmt.Errorf("load case %s: %w", caseID, err)
	}

	if c.Status != models.CaseOnboarded && c.Status != models.CaseDocumentation {
		return false, nil
	}
	if c.VerificationStatus == models.StatusFlagged {
		return false, nil
	}
	if !w.Readiness(c).Verified {
		return false, nil
	}

	if err := w.store.SetCaseStatus(ctx, caseID, models.CaseITRFiling); err != nil {
		return false, fmt.Errorf("advance case %s: %w", caseID, err)
	}
	slog.Info("[Workflow] case advanced", "case_id", caseID, "from", c.Status, "to", models.CaseITRFiling)
	return true, nil
}
