package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taxfiler/kyc-ocr-service/internal/db"
	"github.com/taxfiler/kyc-ocr-service/internal/logger"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
	"github.com/taxfiler/kyc-ocr-service/internal/storage"
)

// ErrInvalidStatus is returned for a kanban stage that does not exist
var ErrInvalidStatus = errors.New("unknown case status")

// ObjectUploader stores document bytes and returns a reference the
// SourceResolver can read back.
type ObjectUploader interface {
	UploadDocument(ctx context.Context, caseID string, data []byte, contentType string) (string, error)
}

// NewCase is the input for registering a case
type NewCase struct {
	ID         string
	ClientID   string
	ClientName string
	Name       string
	Category   string
}

// NewUpload is one uploaded document. Either Data or URL is set.
type NewUpload struct {
	Name        string
	Type        string
	URL         string
	Data        []byte
	ContentType string
}

// CaseService is the entry point for case and document operations
type CaseService struct {
	store    CaseStore
	runner   *Runner
	workflow *Workflow
	objects  ObjectUploader
	now      func() time.Time
}

// NewCaseService wires the case operations. objects may be nil, in which case
// uploaded bytes are kept inline as data URIs.
func NewCaseService(store CaseStore, runner *Runner, workflow *Workflow, objects ObjectUploader) *CaseService {
	return &CaseService{
		store:    store,
		runner:   runner,
		workflow: workflow,
		objects:  objects,
		now:      time.Now,
	}
}

// CreateCase registers a case in the onboarded stage
func (s *CaseService) CreateCase(ctx context.Context, in NewCase) (*models.Case, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()

	c := &models.Case{
		ID:                 id,
		ClientID:           in.ClientID,
		ClientName:         in.ClientName,
		Name:               in.Name,
		Category:           in.Category,
		Status:             models.CaseOnboarded,
		VerificationStatus: models.StatusPending,
		Documents:          []models.Document{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}

	logger.Info(ctx, "[Cases] case created", "case_id", id, "category", in.Category)
	return c, nil
}

// GetCase loads a case
func (s *CaseService) GetCase(ctx context.Context, id string) (*models.Case, error) {
	return s.store.GetCase(ctx, id)
}

// AddDocument stores the document as pending and starts its verification.
// A document with the same name is replaced in place.
func (s *CaseService) AddDocument(ctx context.Context, caseID string, up NewUpload) (models.Document, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return models.Document{}, err
	}

	url, err := s.documentURL(ctx, caseID, up)
	if err != nil {
		return models.Document{}, err
	}

	kind := up.Type
	if kind == "" {
		kind = models.DocumentKindFile
	}

	doc := models.Document{
		Name:         up.Name,
		Type:         kind,
		URL:          url,
		Timestamp:    s.now(),
		Verification: models.PendingResult(),
	}
	if err := s.store.UpsertDocument(ctx, caseID, doc); err != nil {
		return models.Document{}, err
	}

	s.runner.Submit(ctx, caseID, doc, c.Client())
	return doc, nil
}

// Reverify starts a fresh verification of an existing document
func (s *CaseService) Reverify(ctx context.Context, caseID, name string) (models.Document, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return models.Document{}, err
	}
	doc, ok := c.Document(name)
	if !ok {
		return models.Document{}, fmt.Errorf("document %q: %w", name, db.ErrNotFound)
	}

	doc.Verification = models.PendingResult()
	if err := s.store.UpdateVerification(ctx, caseID, name, doc.Verification); err != nil {
		return models.Document{}, err
	}

	s.runner.Submit(ctx, caseID, *doc, c.Client())
	return *doc, nil
}

// Logs returns the log trail of the latest verification attempt of a document
func (s *CaseService) Logs(ctx context.Context, caseID, name string) ([]models.LogEntry, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	doc, ok := c.Document(name)
	if !ok {
		return nil, fmt.Errorf("document %q: %w", name, db.ErrNotFound)
	}
	return doc.Verification.Logs, nil
}

// Readiness evaluates the required-document checklist of a case
func (s *CaseService) Readiness(ctx context.Context, caseID string) (Readiness, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return Readiness{}, err
	}
	return s.workflow.Readiness(c), nil
}

// SetStatus moves a case to a kanban stage manually
func (s *CaseService) SetStatus(ctx context.Context, caseID string, status models.CaseStatus) error {
	switch status {
	case models.CaseOnboarded, models.CaseDocumentation, models.CaseITRFiling, models.CaseBilled:
	default:
		return fmt.Errorf("%w %q", ErrInvalidStatus, status)
	}
	return s.store.SetCaseStatus(ctx, caseID, status)
}

// documentURL decides where the image of an upload lives. Raw bytes, data
// URIs and raw base64 go to object storage when it is configured and are
// kept inline as a data URI otherwise. Links are stored as given.
func (s *CaseService) documentURL(ctx context.Context, caseID string, up NewUpload) (string, error) {
	data, contentType := up.Data, up.ContentType

	if data == nil {
		src := strings.TrimSpace(up.URL)
		if !storage.IsInline(src) {
			return src, nil
		}
		decoded, mime, err := storage.DecodeInline(src)
		if err != nil {
			return "", err
		}
		if storage.IsDataURI(src) && s.objects == nil {
			return src, nil
		}
		data, contentType = decoded, mime
	}

	if contentType == "" {
		contentType = ocr.MimeType(data)
	}

	if s.objects == nil {
		return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
	}

	ref, err := s.objects.UploadDocument(ctx, caseID, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return ref, nil
}
