package vision

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/genai"

	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

// Gemini proposes actions through the Gemini API. The SDK is handed a
// retrying HTTP client so transient 5xx responses do not surface as
// failed ticks.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *logging.Logger
}

// NewGemini creates a Gemini-backed client.
func NewGemini(ctx context.Context, cfg Config, logger *logging.Logger) (*Gemini, error) {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.Logger = nil
	retry.HTTPClient.Timeout = cfg.Timeout

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: retry.StandardClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}, nil
}

// Provider identifies this client.
func (g *Gemini) Provider() string { return "gemini" }

// Propose submits the screenshot inline with the prompts and returns the
// model text.
func (g *Gemini) Propose(ctx context.Context, image []byte, system, user string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(user),
		genai.NewPartFromBytes(image, "image/png"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("vision request: empty response")
	}
	return text, nil
}
