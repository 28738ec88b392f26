package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// MemoryStore is an in-memory case store used when no database is configured.
// Reads return copies, so callers never share state with the store.
type MemoryStore struct {
	cases map[string]*models.Case
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	slog.Info("[DB] using in-memory case store")
	return &MemoryStore{cases: make(map[string]*models.Case)}
}

func (s *MemoryStore) CreateCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("case %s: %w", c.ID, ErrConflict)
	}
	s.cases[c.ID] = cloneCase(c)
	return nil
}

func (s *MemoryStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCase(c), nil
}

// UpsertDocument replaces a same-named document in place or appends a new one
func (s *MemoryStore) UpsertDocument(_ context.Context, caseID string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return ErrNotFound
	}

	doc.Verification = cloneResult(doc.Verification)
	if existing, found := c.Document(doc.Name); found {
		*existing = doc
	} else {
		c.Documents = append(c.Documents, doc)
	}
	c.UpdatedAt = time.Now()
	return nil
}

// UpdateVerification replaces one document's result by name. Last write wins.
func (s *MemoryStore) UpdateVerification(_ context.Context, caseID, name string, res models.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	doc, found := c.Document(name)
	if !found {
		return ErrNotFound
	}
	doc.Verification = cloneResult(res)
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetCaseVerification(_ context.Context, caseID string, status models.VerificationStatus) error {
	return s.update(caseID, func(c *models.Case) { c.VerificationStatus = status })
}

func (s *MemoryStore) SetCaseStatus(_ context.Context, caseID string, status models.CaseStatus) error {
	return s.update(caseID, func(c *models.Case) { c.Status = status })
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) update(caseID string, fn func(*models.Case)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	c.UpdatedAt = time.Now()
	return nil
}

func cloneCase(c *models.Case) *models.Case {
	cp := *c
	cp.Documents = make([]models.Document, len(c.Documents))
	for i, d := range c.Documents {
		d.Verification = cloneResult(d.Verification)
		cp.Documents[i] = d
	}
	return &cp
}

func cloneResult(r models.VerificationResult) models.VerificationResult {
	r.Logs = append([]models.LogEntry(nil), r.Logs...)
	if r.Logs == nil {
		r.Logs = []models.LogEntry{}
	}
	if r.Score != nil {
		score := *r.Score
		r.Score = &score
	}
	return r
}
