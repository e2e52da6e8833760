package desktop

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Scrot captures the screen by shelling out to scrot, reading the PNG it
// writes into a throwaway directory. The artifact stays opaque bytes;
// nothing downstream decodes it.
type Scrot struct {
	run     runner
	quality int
	timeout time.Duration
}

// ScrotOption configures a Scrot capture.
type ScrotOption func(*Scrot)

// WithQuality sets the scrot image quality (1-100).
func WithQuality(q int) ScrotOption {
	return func(s *Scrot) { s.quality = q }
}

// WithCaptureTimeout bounds a single capture.
func WithCaptureTimeout(d time.Duration) ScrotOption {
	return func(s *Scrot) { s.timeout = d }
}

// NewScrot creates the real screen capture.
func NewScrot(opts ...ScrotOption) *Scrot {
	s := &Scrot{
		run:     execRunner,
		quality: 75,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture reads the current framebuffer and returns PNG bytes.
func (s *Scrot) Capture(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "deskpilot-capture-")
	if err != nil {
		return nil, &CaptureError{Err: err}
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "screen.png")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.run(ctx, "scrot", "-o", "-q", strconv.Itoa(s.quality), path); err != nil {
		return nil, &CaptureError{Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CaptureError{Err: err}
	}
	return data, nil
}
