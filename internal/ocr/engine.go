// Package ocr turns identity document images into raw text. Engines are
// interchangeable: local Tesseract, or a vision model used as a transcriber.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MinImageBytes is the smallest buffer worth sending to an engine. Anything
// smaller is a truncated upload or a placeholder, never a readable document.
const MinImageBytes = 500

// StatusRecognizing is the progress status engines report while reading text
const StatusRecognizing = "recognizing text"

var (
	ErrImageTooSmall = errors.New("image too small")
	ErrNoEngine      = errors.New("no OCR engine configured")
)

// Progress is a coarse progress event emitted by an engine
type Progress struct {
	Status   string
	Progress float64 // 0..1
}

// ProgressFunc receives progress events. It may be nil.
type ProgressFunc func(Progress)

// Input is a single image submitted for recognition
type Input struct {
	Image     []byte
	Languages []string
	// Variables are engine-specific knobs (tesseract variables, for example)
	Variables map[string]string
	Progress  ProgressFunc
}

// Result is the text recognized from one image
type Result struct {
	Text       string
	Engine     string
	Confidence float64 // 0..1, zero when the engine does not report it
}

// Engine is one image in, one text out
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// Recognize validates the input and runs a single recognition attempt.
// Undersized buffers fail with ErrImageTooSmall before the engine is called.
func Recognize(ctx context.Context, engine Engine, in Input) (Result, error) {
	if engine == nil {
		return Result{}, ErrNoEngine
	}
	if len(in.Image) < MinImageBytes {
		return Result{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrImageTooSmall, len(in.Image), MinImageBytes)
	}

	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", engine.Name(), err)
	}
	if res.Engine == "" {
		res.Engine = engine.Name()
	}
	return res, nil
}

// Report sends a progress event to the input's ProgressFunc, if any
func (in Input) Report(status string, p float64) {
	if in.Progress != nil {
		in.Progress(Progress{Status: status, Progress: p})
	}
}

// MimeType sniffs the image content type, defaulting to PNG when unknown
func MimeType(data []byte) string {
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "image/png"
	}
	return ct
}
