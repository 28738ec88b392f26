package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxfiler/kyc-ocr-service/internal/kyc"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
)

const panCardText = `INCOME TAX DEPARTMENT
GOVT. OF INDIA
Name
RAMESH KUMAR
Father's Name
SURESH KUMAR
01/01/1990
Permanent Account Number
ABCDE1234F`

type resolverFunc func(ctx context.Context, source string) ([]byte, error)

func (f resolverFunc) Resolve(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}

func bytesResolver(n int) ImageResolver {
	return resolverFunc(func(context.Context, string) ([]byte, error) {
		return bytes.Repeat([]byte{0xff}, n), nil
	})
}

// textEngine returns fixed text, reporting progress at the given points
type textEngine struct {
	text     string
	err      error
	panicMsg string
	progress []float64
	calls    atomic.Int32
	last     ocr.Input
}

func (e *textEngine) Name() string { return "fake" }

func (e *textEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	e.calls.Add(1)
	e.last = in
	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	if e.err != nil {
		return ocr.Result{}, e.err
	}
	for _, p := range e.progress {
		in.Report(ocr.StatusRecognizing, p)
	}
	return ocr.Result{Text: e.text}, nil
}

func messages(logs []models.LogEntry) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Message
	}
	return out
}

func TestVerifyPANCard(t *testing.T) {
	eng := &textEngine{text: panCardText, progress: []float64{0, 1}}
	v := NewVerifier(bytesResolver(2048), eng, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "data:image/png;base64,...", models.ClientProfile{Name: "Ramesh Kumar"})

	assert.Equal(t, models.StatusVerified, res.Status)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 1.0, *res.Score, 1e-9)
	assert.Equal(t, "RAMESH KUMAR", models.Deref(res.Extracted.Name))
	assert.Equal(t, "ABCDE1234F", models.Deref(res.Extracted.IDNumber))
	assert.Equal(t, "01/01/1990", models.Deref(res.Extracted.DOB))
	assert.Equal(t, models.DocumentTypePAN, res.DetectedType)
	assert.Equal(t, panCardText, res.RawText)
	assert.Equal(t, "fake", res.Engine)
	assert.Empty(t, res.Error)
	assert.NotNil(t, res.VerifiedAt)

	assert.Equal(t, []string{
		"Starting OCR process...",
		"Buffer created (2048 bytes). Initializing fake...",
		"OCR Progress: 0%",
		"OCR Progress: 100%",
		"OCR completed. Analyzing text...",
		"Extracted Data: Name[RAMESH KUMAR] ID[ABCDE1234F] DOB[01/01/1990]",
		"Detected document type: PAN",
		"Comparing with Client Profile: RAMESH KUMAR",
		"Name Similarity Score: 100.00%",
		"Verification result: VERIFIED (Total Score: 1.00)",
	}, messages(res.Logs))
}

func TestVerifyPassesEngineVariables(t *testing.T) {
	eng := &textEngine{text: panCardText}
	vars := map[string]string{"tessedit_pageseg_mode": "6"}
	v := NewVerifier(bytesResolver(2048), eng, kyc.DefaultScorer(), []string{"eng", "hin"}).WithVariables(vars)

	res := v.Verify(context.Background(), "data:image/png;base64,...", models.ClientProfile{Name: "Ramesh Kumar"})
	require.Equal(t, models.StatusVerified, res.Status)

	assert.Equal(t, vars, eng.last.Variables)
	assert.Equal(t, []string{"eng", "hin"}, eng.last.Languages)
}

func TestVerifyRejectsSmallBuffer(t *testing.T) {
	eng := &textEngine{text: panCardText}
	v := NewVerifier(bytesResolver(400), eng, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "abc", models.ClientProfile{Name: "Ramesh Kumar"})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Nil(t, res.Score)
	assert.Contains(t, res.Error, "image too small")
	assert.Equal(t, int32(0), eng.calls.Load())

	logs := messages(res.Logs)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Starting OCR process...", logs[0])
	assert.True(t, strings.HasPrefix(logs[len(logs)-1], "ERROR: "))
}

func TestVerifyResolverError(t *testing.T) {
	resolver := resolverFunc(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("failed to fetch image: HTTP 404")
	})
	v := NewVerifier(resolver, &textEngine{}, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "https://example.com/x.png", models.ClientProfile{Name: "A B"})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "failed to fetch image: HTTP 404", res.Error)
	assert.Equal(t, []string{"Starting OCR process...", "ERROR: failed to fetch image: HTTP 404"}, messages(res.Logs))
}

func TestVerifyEngineErrorKeepsLogs(t *testing.T) {
	v := NewVerifier(bytesResolver(1000), &textEngine{err: errors.New("tesseract crashed")}, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "x", models.ClientProfile{Name: "A B"})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "tesseract crashed")
	logs := messages(res.Logs)
	assert.Len(t, logs, 3)
	assert.Equal(t, "Buffer created (1000 bytes). Initializing fake...", logs[1])
}

func TestVerifyRecoversPanic(t *testing.T) {
	v := NewVerifier(bytesResolver(1000), &textEngine{panicMsg: "nil map"}, kyc.DefaultScorer(), nil)

	var res models.VerificationResult
	assert.NotPanics(t, func() {
		res = v.Verify(context.Background(), "x", models.ClientProfile{Name: "A B"})
	})
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "nil map")
}

func TestVerifyNoEngine(t *testing.T) {
	v := NewVerifier(bytesResolver(1000), nil, kyc.DefaultScorer(), nil)
	res := v.Verify(context.Background(), "x", models.ClientProfile{Name: "A B"})
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "none", res.Engine)
}

func TestVerifyMissingNameIsFlagged(t *testing.T) {
	v := NewVerifier(bytesResolver(1000), &textEngine{text: "1234\n5678"}, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "x", models.ClientProfile{Name: "Ramesh Kumar"})

	assert.Equal(t, models.StatusFlagged, res.Status)
	require.NotNil(t, res.Score)
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, models.DocumentTypeUnknown, res.DetectedType)
	logs := messages(res.Logs)
	assert.Contains(t, logs, "Extracted Data: Name[N/A] ID[N/A] DOB[N/A]")
	assert.Contains(t, logs, "Name comparison skipped (missing data)")
	assert.Equal(t, "Verification result: FLAGGED (Total Score: 0.00)", logs[len(logs)-1])
}

func TestProgressLoggedOncePerStep(t *testing.T) {
	eng := &textEngine{text: panCardText, progress: []float64{0, 0.1, 0.25, 0.26, 0.5, 0.49, 0.75, 1, 1}}
	v := NewVerifier(bytesResolver(1000), eng, kyc.DefaultScorer(), nil)

	res := v.Verify(context.Background(), "x", models.ClientProfile{Name: "Ramesh Kumar"})

	var progress []string
	for _, m := range messages(res.Logs) {
		if strings.HasPrefix(m, "OCR Progress") {
			progress = append(progress, m)
		}
	}
	assert.Equal(t, []string{
		"OCR Progress: 0%",
		"OCR Progress: 25%",
		"OCR Progress: 50%",
		"OCR Progress: 75%",
		"OCR Progress: 100%",
	}, progress)
}
