// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gateway's HTTP handlers.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/middleware"
	"github.com/Prgm-code/index0/services/gateway/observability"
	"github.com/Prgm-code/index0/services/gateway/upload"
)

// UploadHandler serves the multipart upload endpoints.
type UploadHandler struct {
	orch   *upload.Orchestrator
	logger *slog.Logger
}

// NewUploadHandler wires the handler.
func NewUploadHandler(orch *upload.Orchestrator, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{orch: orch, logger: logger}
}

// Initialize handles POST /v1/uploads.
//
// Declares an upload, reserves quota, and returns one presigned URL per
// 5 MiB part. 402-adjacent conditions (quota) come back as 413.
func (h *UploadHandler) Initialize(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.InitializeUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.orch.Initialize(c.Request.Context(), info.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, datatypes.ErrQuotaExceeded):
			observability.RecordUploadSession("quota_denied")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "storage quota exceeded"})
		case errors.Is(err, datatypes.ErrTransport):
			observability.RecordUploadSession("failed")
			h.logger.Error("upload initialize failed", "user_id", info.UserID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Complete handles POST /v1/uploads/complete.
func (h *UploadHandler) Complete(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.orch.Finalize(c.Request.Context(), info.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, datatypes.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, datatypes.ErrIncompleteUpload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, datatypes.ErrTransport):
			observability.RecordUploadSession("failed")
			h.logger.Error("upload finalize failed",
				"user_id", info.UserID, "session_id", req.SessionID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	observability.RecordUploadFinalized(resp.Size)
	c.JSON(http.StatusOK, resp)
}

// Abort handles POST /v1/uploads/abort.
func (h *UploadHandler) Abort(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.AbortUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.orch.Abort(c.Request.Context(), info.UserID, &req); err != nil {
		switch {
		case errors.Is(err, datatypes.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, datatypes.ErrTransport):
			h.logger.Error("upload abort failed",
				"user_id", info.UserID, "session_id", req.SessionID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	observability.RecordUploadSession("aborted")
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}
