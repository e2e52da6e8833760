package desktop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner records invocations and plays back canned output.
type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func newTestDevice(f *fakeRunner) *XDoTool {
	x := NewXDoTool()
	x.run = f.run
	return x
}

func TestMoveMouseCommand(t *testing.T) {
	f := &fakeRunner{}
	x := newTestDevice(f)

	if err := x.MoveMouse(context.Background(), 120, 450); err != nil {
		t.Fatalf("MoveMouse failed: %v", err)
	}

	want := "xdotool mousemove 120 450"
	if got := strings.Join(f.calls[0], " "); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestClickCommand(t *testing.T) {
	f := &fakeRunner{}
	x := newTestDevice(f)

	if err := x.Click(context.Background(), 3); err != nil {
		t.Fatalf("Click failed: %v", err)
	}

	want := "xdotool click 3"
	if got := strings.Join(f.calls[0], " "); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTypeTextFlattensNewlines(t *testing.T) {
	f := &fakeRunner{}
	x := newTestDevice(f)

	if err := x.TypeText(context.Background(), "line one\nline two"); err != nil {
		t.Fatalf("TypeText failed: %v", err)
	}

	args := f.calls[0]
	if args[len(args)-1] != "line one line two" {
		t.Errorf("newlines should flatten to spaces, got %q", args[len(args)-1])
	}
	// Literal text must sit behind the -- terminator so leading dashes
	// are never parsed as flags.
	if args[len(args)-2] != "--" {
		t.Errorf("expected -- before the text, got %q", args[len(args)-2])
	}
}

func TestPressKeyCommand(t *testing.T) {
	f := &fakeRunner{}
	x := newTestDevice(f)

	if err := x.PressKey(context.Background(), "ctrl+alt+t"); err != nil {
		t.Fatalf("PressKey failed: %v", err)
	}

	want := "xdotool key --clearmodifiers ctrl+alt+t"
	if got := strings.Join(f.calls[0], " "); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestActivateWindowCommand(t *testing.T) {
	f := &fakeRunner{}
	x := newTestDevice(f)

	if err := x.ActivateWindow(context.Background(), "0x04000007"); err != nil {
		t.Fatalf("ActivateWindow failed: %v", err)
	}

	want := "wmctrl -ia 0x04000007"
	if got := strings.Join(f.calls[0], " "); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestListWindows(t *testing.T) {
	f := &fakeRunner{output: []byte(
		"0x04000007  0 desktop Mozilla Firefox\n" +
			"0x04a00003  1 desktop Terminal - user@host: ~\n" +
			"0x05000001 -1 desktop\n",
	)}
	x := newTestDevice(f)

	windows, err := x.ListWindows(context.Background())
	if err != nil {
		t.Fatalf("ListWindows failed: %v", err)
	}

	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if windows[0].ID != "0x04000007" || windows[0].Title != "Mozilla Firefox" {
		t.Errorf("unexpected first window: %+v", windows[0])
	}
	if windows[1].Title != "Terminal - user@host: ~" {
		t.Errorf("title with whitespace mangled: %q", windows[1].Title)
	}
	if windows[2].Title != "" {
		t.Errorf("titleless window should have empty title, got %q", windows[2].Title)
	}
}

func TestParseWindowListSkipsGarbage(t *testing.T) {
	windows := parseWindowList("\n  \nnot-enough\n0x1 0 host Title\n")
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if windows[0].Title != "Title" {
		t.Errorf("unexpected window: %+v", windows[0])
	}
}

func TestDeviceErrorWrapping(t *testing.T) {
	f := &fakeRunner{err: fmt.Errorf("xdotool: command not found")}
	x := newTestDevice(f)

	err := x.Click(context.Background(), 1)
	var dev *DeviceError
	if !errors.As(err, &dev) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if dev.Op != "click" {
		t.Errorf("expected op click, got %s", dev.Op)
	}
}
