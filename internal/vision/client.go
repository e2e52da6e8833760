// Package vision is the boundary to the external vision model. The
// controller treats it as an opaque request/response surface: a PNG of
// the screen and two prompts go in, free text comes back. Everything
// about interpreting that text defensively lives in the decision
// package, not here.
package vision

import (
	"context"
	"time"
)

// Client proposes an action description for the current screen.
type Client interface {
	// Provider identifies the backing implementation for logs and
	// status reporting.
	Provider() string
	// Propose submits the screen image with the system and user prompts
	// and returns the model's raw text response.
	Propose(ctx context.Context, image []byte, system, user string) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string // "openai" or "gemini"
	BaseURL     string // OpenAI-compatible endpoint base
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}
