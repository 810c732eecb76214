// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes the gateway's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Gateway
// =============================================================================

var (
	// requestsTotal counts API requests.
	// Labels: route, status (2xx/4xx/5xx class as string)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total API requests by route and status class",
	}, []string{"route", "status"})

	// streamsTotal counts chat streams by terminal outcome.
	// Labels: outcome (completed, upstream_error, client_gone)
	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "streams_total",
		Help:      "Total chat streams by outcome",
	}, []string{"outcome"})

	// streamDeltas counts reframed text deltas pushed to clients.
	streamDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "stream_deltas_total",
		Help:      "Total reframed deltas emitted to chat clients",
	})

	// streamDuration measures end-to-end chat stream time.
	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "stream_duration_seconds",
		Help:      "Chat stream duration from open to completion",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	// uploadBytes counts bytes committed through finalized uploads.
	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "upload_bytes_total",
		Help:      "Total bytes committed via finalized multipart uploads",
	})

	// uploadSessions counts upload sessions by terminal state.
	// Labels: state (finalized, aborted, quota_denied, failed)
	uploadSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "upload_sessions_total",
		Help:      "Upload sessions by terminal state",
	}, []string{"state"})

	// rateLimitDenials counts requests denied by the fixed-window limiter.
	rateLimitDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "index0",
		Subsystem: "gateway",
		Name:      "rate_limit_denials_total",
		Help:      "Chat requests denied by the rate limiter",
	})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordRequest counts one API request.
//
// Inputs:
//
//	route - The route template, e.g. "/v1/uploads".
//	status - Status class: "2xx", "4xx", "5xx".
func RecordRequest(route, status string) {
	requestsTotal.WithLabelValues(route, status).Inc()
}

// RecordStream counts one finished chat stream and its duration.
//
// Inputs:
//
//	outcome - "completed", "upstream_error", or "client_gone".
//	durationSec - Stream duration in seconds.
func RecordStream(outcome string, durationSec float64) {
	streamsTotal.WithLabelValues(outcome).Inc()
	streamDuration.Observe(durationSec)
}

// RecordDelta counts one emitted text delta.
func RecordDelta() {
	streamDeltas.Inc()
}

// RecordUploadFinalized counts one committed upload and its size.
func RecordUploadFinalized(bytes int64) {
	uploadSessions.WithLabelValues("finalized").Inc()
	uploadBytes.Add(float64(bytes))
}

// RecordUploadSession counts a non-finalized terminal state.
//
// Inputs:
//
//	state - "aborted", "quota_denied", or "failed".
func RecordUploadSession(state string) {
	uploadSessions.WithLabelValues(state).Inc()
}

// RecordRateLimitDenial counts one denied chat request.
func RecordRateLimitDenial() {
	rateLimitDenials.Inc()
}
