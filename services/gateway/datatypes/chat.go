// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and stream event types for the chat relay
// endpoint. For upload types, see upload.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a single chat query.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxHistoryTurns is the maximum number of turns in a request.
	// History is supplied wholesale on each request; the gateway keeps no
	// server-side conversation state across requests.
	MaxHistoryTurns = 100
)

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxquerybytes", validateMaxQueryBytes)
}

// validateMaxQueryBytes enforces MaxQueryBytes on string fields.
// Checks byte length (not rune count) to bound memory, not display width.
func validateMaxQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Conversation Types
// =============================================================================

// ChatTurn is one entry in the append-only conversation history.
type ChatTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role" validate:"required,oneof=user assistant"`

	// Content is the turn's text.
	Content string `json:"content" validate:"required,maxquerybytes"`
}

// ChatRequest is the body for POST /v1/chat.
//
// The full history travels with every request. Folders scope retrieval to
// the caller's virtual folders; an empty list searches everything the
// caller owns.
type ChatRequest struct {
	Query   string     `json:"query" validate:"required,maxquerybytes"`
	Folders []string   `json:"folders,omitempty" validate:"max=100"`
	History []ChatTurn `json:"conversation_history,omitempty" validate:"max=100,dive"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEvent is one SSE event emitted to the chat client.
//
// # Description
//
// Events are written in SSE format (event: type\ndata: json\n\n) by the
// handlers.SSEWriter. Metadata fields (Id, CreatedAt, Hash, PrevHash) are
// populated by the writer, forming a hash chain over the emitted events so
// a client or audit job can verify the transcript was not reordered.
//
// # Event Types
//
//   - "status": progress message ("Searching documents...")
//   - "delta": the current full response text (replace, not append)
//   - "error": user-safe failure text
//   - "done": stream completion, exactly once
type StreamEvent struct {
	// Type discriminates the event: status, delta, error, done.
	Type string `json:"type"`

	// Id is a UUID v4 assigned at write time.
	Id string `json:"id,omitempty"`

	// CreatedAt is a Unix timestamp in milliseconds.
	CreatedAt int64 `json:"created_at,omitempty"`

	// Content carries the text for delta events.
	Content string `json:"content,omitempty"`

	// Message carries human-readable text for status events.
	Message string `json:"message,omitempty"`

	// Error carries the sanitized failure text for error events.
	Error string `json:"error,omitempty"`

	// Hash is the SHA-256 of this event's content fields.
	Hash string `json:"hash,omitempty"`

	// PrevHash links to the previous event's Hash.
	PrevHash string `json:"prev_hash,omitempty"`
}
