package services

import (
	"github.com/taxfiler/kyc-ocr-service/internal/kyc"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// Reconciler derives the case-level verdict from the case's verified documents
type Reconciler struct {
	threshold float64
}

// NewReconciler creates a reconciler. threshold <= 0 uses
// kyc.DefaultCrossDocumentThreshold.
func NewReconciler(threshold float64) Reconciler {
	if threshold <= 0 {
		threshold = kyc.DefaultCrossDocumentThreshold
	}
	return Reconciler{threshold: threshold}
}

// Reconcile compares the first two verified documents in document order.
// With fewer than two verified documents there is no verdict and ok is false:
// the case keeps whatever status it had. Otherwise the case is verified when
// the names agree above the threshold and both carry the same DOB.
func (r Reconciler) Reconcile(docs []models.Document) (status models.VerificationStatus, ok bool) {
	var verified []models.ExtractedFields
	for _, d := range docs {
		if d.Verification.Status == models.StatusVerified {
			verified = append(verified, d.Verification.Extracted)
		}
		if len(verified) == 2 {
			break
		}
	}
	if len(verified) < 2 {
		return "", false
	}

	first, second := verified[0], verified[1]
	if namesAgree(first.Name, second.Name, r.threshold) && dobsAgree(first.DOB, second.DOB) {
		return models.StatusVerified, true
	}
	return models.StatusFlagged, true
}

// A missing name never agrees; Similarity would score two empty strings as identical
func namesAgree(a, b *string, threshold float64) bool {
	na, nb := kyc.Normalize(models.Deref(a)), kyc.Normalize(models.Deref(b))
	if na == "" || nb == "" {
		return false
	}
	return kyc.Similarity(na, nb) > threshold
}

func dobsAgree(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
