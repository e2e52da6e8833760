// Package desktop is the boundary to the real desktop environment:
// pointer and keyboard synthesis, window enumeration and activation, and
// screen capture. Everything behind these interfaces runs with a bounded
// timeout; nothing here blocks indefinitely.
package desktop

import (
	"context"
	"fmt"
)

// Window is one entry from the window manager's client list.
type Window struct {
	ID      string `json:"id"`
	Desktop string `json:"desktop"`
	Host    string `json:"host"`
	Title   string `json:"title"`
}

// DeviceError reports a failed input or window primitive. It is surfaced
// to the caller and never retried by the executor.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// CaptureError reports a failed screen read. Fatal to the calling tick,
// not to the process.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("screen capture: %v", e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Device synthesizes input events and manages windows on the live
// desktop.
type Device interface {
	MoveMouse(ctx context.Context, x, y int) error
	Click(ctx context.Context, button int) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, chord string) error
	ListWindows(ctx context.Context) ([]Window, error)
	ActivateWindow(ctx context.Context, id string) error
}

// Capture reads the current screen state as an opaque PNG artifact.
type Capture interface {
	Capture(ctx context.Context) ([]byte, error)
}
