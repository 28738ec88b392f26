package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxfiler/kyc-ocr-service/internal/kyc"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
)

// Verifier runs the full pipeline for one document: resolve the image, OCR,
// extract fields, score against the client profile, classify.
type Verifier struct {
	resolver  ImageResolver
	engine    ocr.Engine
	scorer    kyc.Scorer
	languages []string
	variables map[string]string
	now       func() time.Time
}

// NewVerifier creates a verifier. languages may be nil for the engine default.
func NewVerifier(resolver ImageResolver, engine ocr.Engine, scorer kyc.Scorer, languages []string) *Verifier {
	return &Verifier{
		resolver:  resolver,
		engine:    engine,
		scorer:    scorer,
		languages: languages,
		now:       time.Now,
	}
}

// WithVariables sets engine variables sent with every image
func (v *Verifier) WithVariables(vars map[string]string) *Verifier {
	v.variables = vars
	return v
}

// Verify checks one identity document against a client profile.
// It never returns an error or panics: any failure yields a result with
// status failed, the error message and the log trail up to the failure.
func (v *Verifier) Verify(ctx context.Context, imageSource string, client models.ClientProfile) (result models.VerificationResult) {
	trail := &logTrail{now: v.now}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[KYC] panic during verification", "panic", r)
			result = v.failed(trail, fmt.Errorf("internal error: %v", r))
		}
	}()

	trail.add("Starting OCR process...")

	data, err := v.resolver.Resolve(ctx, imageSource)
	if err != nil {
		return v.failed(trail, err)
	}
	trail.add(fmt.Sprintf("Buffer created (%d bytes). Initializing %s...", len(data), v.engineName()))

	progress := &progressLogger{trail: trail, last: -1}
	rec, err := ocr.Recognize(ctx, v.engine, ocr.Input{
		Image:     data,
		Languages: v.languages,
		Variables: v.variables,
		Progress:  progress.observe,
	})
	if err != nil {
		return v.failed(trail, err)
	}
	trail.add("OCR completed. Analyzing text...")

	ex := kyc.Extract(rec.Text)
	trail.add(fmt.Sprintf("Extracted Data: Name[%s] ID[%s] DOB[%s]",
		orNA(ex.Fields.Name), orNA(ex.Fields.IDNumber), orNA(ex.Fields.DOB)))
	trail.add(fmt.Sprintf("Detected document type: %s", ex.DetectedType))

	trail.add(fmt.Sprintf("Comparing with Client Profile: %s", kyc.Normalize(client.Name)))
	match := v.scorer.Score(models.Deref(ex.Fields.Name), client.Name, ex.Fields.IDNumber != nil)
	if match.NameCompared {
		trail.add(fmt.Sprintf("Name Similarity Score: %s%%", decimal.NewFromFloat(match.NameScore*100).StringFixed(2)))
	} else {
		trail.add("Name comparison skipped (missing data)")
	}

	status := v.scorer.Classify(match.Total)
	trail.add(fmt.Sprintf("Verification result: %s (Total Score: %s)",
		strings.ToUpper(string(status)), decimal.NewFromFloat(match.Total).StringFixed(2)))

	total := match.Total
	finished := v.now()
	return models.VerificationResult{
		Status:       status,
		Score:        &total,
		Extracted:    ex.Fields,
		DetectedType: ex.DetectedType,
		Logs:         trail.entries(),
		RawText:      rec.Text,
		Engine:       rec.Engine,
		VerifiedAt:   &finished,
	}
}

func (v *Verifier) failed(trail *logTrail, err error) models.VerificationResult {
	msg := err.Error()
	trail.add("ERROR: " + msg)
	finished := v.now()
	return models.VerificationResult{
		Status:     models.StatusFailed,
		Logs:       trail.entries(),
		Error:      msg,
		Engine:     v.engineName(),
		VerifiedAt: &finished,
	}
}

func (v *Verifier) engineName() string {
	if v.engine == nil {
		return "none"
	}
	return v.engine.Name()
}

// logTrail is the per-attempt audit log. Engines may report progress from
// their own goroutines, so appends are locked.
type logTrail struct {
	mu   sync.Mutex
	logs []models.LogEntry
	now  func() time.Time
}

func (t *logTrail) add(msg string) {
	slog.Debug("[KYC PROCESS] " + msg)
	t.mu.Lock()
	t.logs = append(t.logs, models.LogEntry{Timestamp: t.now(), Message: msg})
	t.mu.Unlock()
}

func (t *logTrail) entries() []models.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.LogEntry{}, t.logs...)
}

// progressLogger logs recognition progress at 25% steps, each step once
type progressLogger struct {
	mu    sync.Mutex
	trail *logTrail
	last  int
}

func (p *progressLogger) observe(ev ocr.Progress) {
	if ev.Status != ocr.StatusRecognizing {
		return
	}
	step := int(ev.Progress*100+0.5) / 25 * 25

	p.mu.Lock()
	if step <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = step
	p.mu.Unlock()

	p.trail.add(fmt.Sprintf("OCR Progress: %d%%", step))
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}
