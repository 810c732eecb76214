// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/middleware"
	"github.com/Prgm-code/index0/services/gateway/observability"
	"github.com/Prgm-code/index0/services/gateway/ratelimit"
	"github.com/Prgm-code/index0/services/gateway/stream"
)

var tracer = otel.Tracer("index0/gateway/handlers")

// keepAliveInterval paces SSE comment pings during slow retrievals.
const keepAliveInterval = 15 * time.Second

// ChatHandler serves the streaming chat relay and the search pass-through.
type ChatHandler struct {
	client  *stream.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewChatHandler wires the handler.
func NewChatHandler(client *stream.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{client: client, limiter: limiter, logger: logger}
}

// HandleChatStream handles POST /v1/chat.
//
// # Description
//
// Rate-limit gate, then SSE relay: the upstream stream is reframed into
// delta events (each carrying the current full response, replace
// semantics) and closed with a single done event. Upstream failures
// surface as one error event with user-safe text; internals stay in the
// logs.
func (h *ChatHandler) HandleChatStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleChatStream")
	defer span.End()

	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The gate runs before any SSE headers so a denial is a plain 429.
	if err := h.limiter.Check(ctx, info.UserID); err != nil {
		if rle, ok := datatypes.IsRateLimit(err); ok {
			observability.RecordRateLimitDenial()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":    "rate limit exceeded",
				"reset_at": rle.ResetAt.Format(time.RFC3339),
			})
			return
		}
		h.logger.Error("rate limit check failed", "user_id", info.UserID, "error", err)
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	_ = writer.WriteStatus("Searching documents...")

	stopKeepAlive := h.runKeepAlive(writer)
	defer stopKeepAlive()

	start := time.Now()
	deltas := 0
	streamErr := h.client.Chat(ctx, &req, middleware.GetAuthToken(c), info.UserID, func(text string) {
		// The upstream's terminal failure frame travels on the same text
		// channel as deltas; route it to the error event type.
		if text == stream.ErrorFrameText {
			_ = writer.WriteError(text)
			return
		}
		deltas++
		observability.RecordDelta()
		_ = writer.WriteDelta(text)
	})

	stopKeepAlive()
	_ = writer.WriteDone()

	if streamErr != nil {
		observability.RecordStream("upstream_error", time.Since(start).Seconds())
		h.logger.Error("chat stream failed",
			"user_id", info.UserID, "deltas", deltas, "error", streamErr)
		return
	}
	observability.RecordStream("completed", time.Since(start).Seconds())
	h.logger.Info("chat stream completed",
		"user_id", info.UserID,
		"deltas", deltas,
		"duration_ms", time.Since(start).Milliseconds())
}

// runKeepAlive pings the client until the returned stop function is
// called. Safe to call stop more than once.
func (h *ChatHandler) runKeepAlive(writer SSEWriter) func() {
	done := make(chan struct{})
	stopped := false

	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = writer.WriteKeepAlive()
			case <-done:
				return
			}
		}
	}()

	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

// HandleSearch handles POST /v1/search.
//
// Pass-through to the search backend, scoped to the caller's folders. The
// response text goes through the reference sanitizer so storage-namespace
// identities never reach the client.
func (h *ChatHandler) HandleSearch(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleSearch")
	defer span.End()

	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.client.Search(ctx, &req, middleware.GetAuthToken(c))
	if err != nil {
		h.logger.Error("search failed", "user_id", info.UserID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "search unavailable"})
		return
	}

	resp.Response = stream.Scrub(resp.Response, info.UserID)
	c.JSON(http.StatusOK, resp)
}
