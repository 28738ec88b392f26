package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// transcribePrompt asks a vision model to behave like an OCR engine: plain
// text, original line breaks, no interpretation. The field extractors depend
// on line structure ("Name" label followed by the name on the next line).
const transcribePrompt = `Transcribe ALL text visible in this identity document image exactly as printed.
Rules:
- Keep the original line breaks, one printed line per output line.
- Keep labels such as "Name", "Father's Name", "Date of Birth" on their own lines.
- Do not translate, summarize, correct or add anything.
- Output plain text only, no markdown, no commentary.`

var ErrEmptyResponse = errors.New("empty response from vision model")

// OpenAIVisionEngine transcribes images with an OpenAI (or compatible) vision chat model
type OpenAIVisionEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIVisionEngine creates an engine. baseURL may be empty for the default endpoint.
func NewOpenAIVisionEngine(apiKey, baseURL, model string) *OpenAIVisionEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIVisionEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIVisionEngine) Name() string { return "openai:" + e.model }

// Recognize sends the image as a data URL and returns the transcription
func (e *OpenAIVisionEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", MimeType(in.Image), base64.StdEncoding.EncodeToString(in.Image))

	in.Report(StatusRecognizing, 0)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		MaxTokens:   1024,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcribePrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyResponse
	}
	in.Report(StatusRecognizing, 1)

	return Result{
		Text:   cleanTranscript(resp.Choices[0].Message.Content),
		Engine: e.Name(),
	}, nil
}

// GeminiVisionEngine transcribes images with a Gemini model
type GeminiVisionEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiVisionEngine creates the Gemini client. Close it on shutdown.
func NewGeminiVisionEngine(ctx context.Context, apiKey, model string) (*GeminiVisionEngine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiVisionEngine{client: client, model: model}, nil
}

func (e *GeminiVisionEngine) Name() string { return "gemini:" + e.model }

// Close releases the underlying client
func (e *GeminiVisionEngine) Close() error {
	return e.client.Close()
}

// Recognize sends the image inline with the transcription prompt
func (e *GeminiVisionEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	m := e.client.GenerativeModel(e.model)
	m.SetTemperature(0)

	format := strings.TrimPrefix(MimeType(in.Image), "image/")

	in.Report(StatusRecognizing, 0)
	resp, err := m.GenerateContent(ctx, genai.ImageData(format, in.Image), genai.Text(transcribePrompt))
	if err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return Result{}, ErrEmptyResponse
	}
	in.Report(StatusRecognizing, 1)

	return Result{
		Text:   cleanTranscript(sb.String()),
		Engine: e.Name(),
	}, nil
}

// cleanTranscript strips markdown fences models sometimes add despite the prompt
func cleanTranscript(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```text")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
