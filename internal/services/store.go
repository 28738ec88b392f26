package services

import (
	"context"

	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// CaseStore persists cases and their documents. Implementations: db.PostgresStore
// and db.MemoryStore. GetCase returns a copy the caller may modify freely.
type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, id string) (*models.Case, error)
	UpsertDocument(ctx context.Context, caseID string, doc models.Document) error
	UpdateVerification(ctx context.Context, caseID, name string, res models.VerificationResult) error
	SetCaseVerification(ctx context.Context, caseID string, status models.VerificationStatus) error
	SetCaseStatus(ctx context.Context, caseID string, status models.CaseStatus) error
	Ping(ctx context.Context) error
}

// ImageResolver turns an image source reference into bytes
type ImageResolver interface {
	Resolve(ctx context.Context, source string) ([]byte, error)
}

// DocumentVerifier runs one verification attempt. It never fails; errors
// are reported inside the result.
type DocumentVerifier interface {
	Verify(ctx context.Context, imageSource string, client models.ClientProfile) models.VerificationResult
}
