package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint with
// vision support. The screenshot travels as a base64 data URL image
// part, matching what the hosted APIs expect.
type OpenAI struct {
	http        *resty.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *logging.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(cfg Config, logger *logging.Logger) *OpenAI {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &OpenAI{
		http:        client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Provider identifies this client.
func (o *OpenAI) Provider() string { return "openai" }

// Propose submits the screenshot and prompts, returning the raw model
// text.
func (o *OpenAI) Propose(ctx context.Context, image []byte, system, user string) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: []chatContentPart{
				{Type: "text", Text: user},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL, Detail: "high"}},
			}},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}

	var out chatResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("vision request: %s (%s)", out.Error.Message, out.Error.Type)
		}
		return "", fmt.Errorf("vision request: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("vision request: empty response")
	}

	o.logger.Debug("vision response received",
		zap.Int("image_bytes", len(image)),
		zap.Int("response_chars", len(out.Choices[0].Message.Content)),
	)
	return out.Choices[0].Message.Content, nil
}
