package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

// PostgresStore keeps cases and their documents in Postgres. Each document's
// verification result is a JSONB column, replaced whole on every attempt.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateCase inserts a new case
func (s *PostgresStore) CreateCase(ctx context.Context, c *models.Case) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kyc_cases (
			id, client_id, client_name, name, category,
			status, verification_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.ClientID, c.ClientName, c.Name, c.Category,
		string(c.Status), string(c.VerificationStatus), c.CreatedAt, c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("case %s: %w", c.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase loads a case with its documents in upload order
func (s *PostgresStore) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case
	var status, verification string
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, client_name, name, category,
		       status, verification_status, created_at, updated_at
		FROM kyc_cases
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.ClientID, &c.ClientName, &c.Name, &c.Category,
		&status, &verification, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	c.Status = models.CaseStatus(status)
	c.VerificationStatus = models.VerificationStatus(verification)

	rows, err := s.pool.Query(ctx, `
		SELECT name, type, url, uploaded_at, verification
		FROM kyc_documents
		WHERE case_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	c.Documents = []models.Document{}
	for rows.Next() {
		var doc models.Document
		var raw []byte
		if err := rows.Scan(&doc.Name, &doc.Type, &doc.URL, &doc.Timestamp, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &doc.Verification); err != nil {
			return nil, fmt.Errorf("corrupt verification for %s: %w", doc.Name, err)
		}
		c.Documents = append(c.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &c, nil
}

// UpsertDocument inserts a document or replaces the one with the same name,
// keeping its position in the case's document order.
func (s *PostgresStore) UpsertDocument(ctx context.Context, caseID string, doc models.Document) error {
	raw, err := json.Marshal(doc.Verification)
	if err != nil {
		return fmt.Errorf("encode verification: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO kyc_documents (case_id, name, position, type, url, uploaded_at, verification)
		VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM kyc_documents WHERE case_id = $1),
			$3, $4, $5, $6::jsonb
		)
		ON CONFLICT (case_id, name) DO UPDATE SET
			type = EXCLUDED.type,
			url = EXCLUDED.url,
			uploaded_at = EXCLUDED.uploaded_at,
			verification = EXCLUDED.verification
	`, caseID, doc.Name, doc.Type, doc.URL, doc.Timestamp, string(raw))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save document: %w", err)
	}

	return s.touch(ctx, caseID)
}

// UpdateVerification replaces the verification result of one document,
// addressed by name. Concurrent writers to the same document: last write wins.
func (s *PostgresStore) UpdateVerification(ctx context.Context, caseID, name string, res models.VerificationResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode verification: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE kyc_documents SET verification = $3::jsonb
		WHERE case_id = $1 AND name = $2
	`, caseID, name, string(raw))
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return s.touch(ctx, caseID)
}

// SetCaseVerification stores the derived case-level verdict
func (s *PostgresStore) SetCaseVerification(ctx context.Context, caseID string, status models.VerificationStatus) error {
	return s.updateCase(ctx, `UPDATE kyc_cases SET verification_status = $2, updated_at = now() WHERE id = $1`, caseID, string(status))
}

// SetCaseStatus moves the case to another kanban stage
func (s *PostgresStore) SetCaseStatus(ctx context.Context, caseID string, status models.CaseStatus) error {
	return s.updateCase(ctx, `UPDATE kyc_cases SET status = $2, updated_at = now() WHERE id = $1`, caseID, string(status))
}

// Ping checks the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) updateCase(ctx context.Context, query, caseID, value string) error {
	tag, err := s.pool.Exec(ctx, query, caseID, value)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) touch(ctx context.Context, caseID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE kyc_cases SET updated_at = $2 WHERE id = $1`, caseID, time.Now())
	return err
}
