/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the
controller, tracking HTTP requests, attempted actions and their outcomes,
safety vetoes, vision round trips, and the autonomy loop's state.

# Features

- HTTP request metrics (latency, throughput)
- Action metrics by kind, source, and outcome
- Veto counts by reason
- Device and decision latency histograms
- Autonomy loop state and tick counters
- WebSocket connection gauge
- Uptime tracking

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record pipeline events
	metrics.RecordAction("click", "api", "executed", duration)
	metrics.RecordVeto("rate_limit")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
