/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern so an unavailable or
flapping vision endpoint degrades the autonomy loop to no-op ticks
instead of stalling every iteration on a full timeout.

# Usage

	breaker := resilience.NewBreaker("vision", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	err := breaker.Execute(func() error {
		return client.Call()
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, a single probe is allowed

# Pattern

The breaker opens after FailureThreshold consecutive failures, waits out
the cooldown, then admits one probe. A successful probe closes it; a
failed probe reopens it.
*/
package resilience
