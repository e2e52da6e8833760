// Package main is the entry point for the deskpilot controller.
//
// The controller drives a Linux desktop through xdotool, wmctrl, and
// scrot, with a vision model proposing the next step when autonomy is
// enabled. Every action, whether an operator issued it over the API or
// the autonomy loop proposed it, passes through one safety governor and
// one device mutex.
//
// The server provides:
//   - REST API for direct desktop control and autonomy lifecycle
//   - WebSocket streaming of live screenshots and activity records
//   - An append-only activity trail mirrored to a rotating JSONL file
//   - An emergency stop that latches until an operator resets it
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	VISION_API_KEY=... ./server -port 8765
//
//	# Development mode (colored logs, debug level)
//	VISION_API_KEY=... ./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
