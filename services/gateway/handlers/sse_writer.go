// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// SSEWriter abstracts SSE serialization from HTTP response mechanics so
// streaming handlers can be tested against a recording fake. Each event is
// assigned an Id (UUID v4), a CreatedAt timestamp in Unix milliseconds, a
// SHA-256 Hash of its content, and a PrevHash linking to the previous
// event, forming a verifiable chain over the transcript.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; a keepalive goroutine
// may write alongside the delta source.
//
// # Assumptions
//
//   - Caller set SSE headers (SetSSEHeaders) before the first write
type SSEWriter interface {
	// WriteEvent writes one event, populating its metadata, and flushes.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event ("Searching documents...").
	WriteStatus(message string) error

	// WriteDelta writes the current full response text. Replace semantics:
	// the client swaps its rendered text, it does not append.
	WriteDelta(content string) error

	// WriteError writes a user-safe error event. The message must already
	// be sanitized; no internal details reach the client.
	WriteError(errMsg string) error

	// WriteDone signals stream completion. Exactly once per stream.
	WriteDone() error

	// WriteKeepAlive writes an SSE comment to hold the connection open
	// through load-balancer idle timeouts. Not part of the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// Events go out as "event: {type}\ndata: {json}\n\n" and are flushed
// immediately. The hash chain state (prevHash) lives here, one chain per
// response.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps a ResponseWriter for SSE output.
//
// # Outputs
//
//   - SSEWriter: ready to write events.
//   - error: non-nil when the ResponseWriter cannot flush, which makes
//     streaming impossible.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteEvent populates metadata, extends the hash chain, serializes, and
// flushes one event.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes the event's identifying and content fields.
// Called with Hash still empty; the result becomes the chain link.
func computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.Error,
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "status", Message: message})
}

func (w *sseWriter) WriteDelta(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "delta", Content: content})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "error", Error: errMsg})
}

func (w *sseWriter) WriteDone() error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "done"})
}

// WriteKeepAlive writes ": ping" outside the event chain.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures the response for SSE streaming. Must run before
// the first body write. X-Accel-Buffering disables nginx buffering.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)
