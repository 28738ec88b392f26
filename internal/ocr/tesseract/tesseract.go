package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
)

// Engine runs the local tesseract library through gosseract.
// A fresh client is created per call; gosseract clients are not safe for
// concurrent use.
type Engine struct {
	language      string
	preprocessor  *ocr.Preprocessor
	clientFactory func() *gosseract.Client
}

// New creates a Tesseract engine. An empty language defaults to "eng".
// A nil preprocessor sends the image as-is.
func New(language string, preprocessor *ocr.Preprocessor) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{
		language:      language,
		preprocessor:  preprocessor,
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	img := in.Image
	if e.preprocessor != nil {
		img = e.preprocessor.Process(img)
	}

	c := e.clientFactory()
	defer c.Close()

	langs := in.Languages
	if len(langs) == 0 {
		langs = []string{e.language}
	}
	if err := c.SetLanguage(langs...); err != nil {
		return ocr.Result{}, fmt.Errorf("set languages: %w", err)
	}
	for k, v := range in.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}

	in.Report(ocr.StatusRecognizing, 0)
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	in.Report(ocr.StatusRecognizing, 1)

	return ocr.Result{
		Text:       strings.TrimSpace(text),
		Engine:     e.Name(),
		Confidence: meanConfidence(c),
	}, nil
}

func meanConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
