package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestCaptureReadsWrittenFile(t *testing.T) {
	payload := []byte("\x89PNG fake image bytes")
	s := NewScrot(WithQuality(50))
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "scrot" {
			t.Errorf("expected scrot, got %s", name)
		}
		// scrot writes to the path given as its last argument.
		return nil, os.WriteFile(args[len(args)-1], payload, 0o644)
	}

	data, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("capture should return the written bytes unchanged")
	}
}

func TestCaptureWrapsFailures(t *testing.T) {
	s := NewScrot()
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, fmt.Errorf("scrot: no display")
	}

	_, err := s.Capture(context.Background())
	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CaptureError, got %v", err)
	}
}
