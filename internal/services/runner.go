package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taxfiler/kyc-ocr-service/internal/logger"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// Runner executes verifications in the background, one goroutine per
// submission. There is no queue, throttling or cancellation.
//
// Two runs for the same document are not ordered: each writes its result by
// document name when it finishes, so the run that finishes last wins.
type Runner struct {
	verifier   DocumentVerifier
	store      CaseStore
	reconciler Reconciler
	workflow   *Workflow
	wg         sync.WaitGroup
}

func NewRunner(verifier DocumentVerifier, store CaseStore, reconciler Reconciler, workflow *Workflow) *Runner {
	return &Runner{
		verifier:   verifier,
		store:      store,
		reconciler: reconciler,
		workflow:   workflow,
	}
}

// Submit starts verifying doc in the background and returns immediately.
// The run outlives ctx cancellation but keeps its values for logging.
func (r *Runner) Submit(ctx context.Context, caseID string, doc models.Document, client models.ClientProfile) {
	ctx = context.WithValue(context.WithoutCancel(ctx), logger.CaseIDKey, caseID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, caseID, doc, client)
	}()
}

// Wait blocks until every submitted run has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for running verifications until ctx is done
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("verifications still running: %w", ctx.Err())
	}
}

func (r *Runner) run(ctx context.Context, caseID string, doc models.Document, client models.ClientProfile) {
	start := time.Now()
	res := r.verify(ctx, doc, client)

	logger.Info(ctx, "[Runner] verification finished",
		"document", doc.Name,
		"status", res.Status,
		"duration", time.Since(start).String(),
	)

	if err := r.store.UpdateVerification(ctx, caseID, doc.Name, res); err != nil {
		logger.Error(ctx, "[Runner] failed to save verification", "document", doc.Name, "error", err)
		return
	}

	// runs whatever the outcome of the document itself
	if err := r.Reconcile(ctx, caseID); err != nil {
		logger.Error(ctx, "[Runner] reconcile failed", "error", err)
	}

	if r.workflow != nil {
		if _, err := r.workflow.Advance(ctx, caseID); err != nil {
			logger.Error(ctx, "[Runner] workflow advance failed", "error", err)
		}
	}
}

// verify shields the run from a panicking verifier
func (r *Runner) verify(ctx context.Context, doc models.Document, client models.ClientProfile) (res models.VerificationResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("[Runner] PANIC recovered", "document", doc.Name, "panic", p)
			now := time.Now()
			msg := fmt.Sprintf("verification panicked: %v", p)
			res = models.VerificationResult{
				Status:     models.StatusFailed,
				Error:      msg,
				Logs:       []models.LogEntry{{Timestamp: now, Message: "ERROR: " + msg}},
				VerifiedAt: &now,
			}
		}
	}()
	return r.verifier.Verify(ctx, doc.URL, client)
}

// Reconcile re-derives the case-level verdict from the current documents
func (r *Runner) Reconcile(ctx context.Context, caseID string) error {
	c, err := r.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}

	status, ok := r.reconciler.Reconcile(c.Documents)
	if !ok || status == c.VerificationStatus {
		return nil
	}
	if err := r.store.SetCaseVerification(ctx, caseID, status); err != nil {
		return err
	}
	logger.Info(ctx, "[Runner] case verification updated", "status", status)
	return nil
}
