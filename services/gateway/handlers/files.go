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
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/middleware"
	"github.com/Prgm-code/index0/services/gateway/storage"
)

// downloadURLTTL is how long presigned download links stay valid.
const downloadURLTTL = 15 * time.Minute

// deleteBatchSize is the object store's per-call delete limit.
const deleteBatchSize = 1000

// FilesHandler serves file, folder, and download endpoints. Every key the
// client sees is owner-relative; the userID prefix is added and stripped
// here and never leaves the server.
type FilesHandler struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewFilesHandler wires the handler.
func NewFilesHandler(store storage.ObjectStore, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{store: store, logger: logger}
}

// List handles GET /v1/files?prefix=.
//
// Lists direct children of the prefix: objects become Files, common
// prefixes and zero-byte "key/" markers become Folders.
func (h *FilesHandler) List(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	prefix := c.Query("prefix")
	rel, ok := cleanRelPath(prefix)
	if prefix != "" && !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prefix"})
		return
	}

	full := info.UserID + "/"
	if rel != "" {
		full += rel + "/"
	}

	listing, err := h.store.List(c.Request.Context(), full, "/")
	if err != nil {
		h.logger.Error("list failed", "user_id", info.UserID, "prefix", prefix, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}

	resp := datatypes.ListFilesResponse{
		Files:   []datatypes.FileInfo{},
		Folders: []string{},
		Prefix:  rel,
	}
	for _, obj := range listing.Objects {
		key := strings.TrimPrefix(obj.Key, info.UserID+"/")
		if strings.HasSuffix(key, "/") {
			// Folder marker for the listed prefix itself.
			continue
		}
		resp.Files = append(resp.Files, datatypes.FileInfo{
			Key:          key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	for _, cp := range listing.CommonPrefixes {
		folder := strings.TrimPrefix(cp, info.UserID+"/")
		resp.Folders = append(resp.Folders, strings.TrimSuffix(folder, "/"))
	}

	c.JSON(http.StatusOK, resp)
}

// Delete handles DELETE /v1/files.
func (h *FilesHandler) Delete(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	keys := make([]string, 0, len(req.Keys))
	for _, k := range req.Keys {
		rel, ok := cleanRelPath(k)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}
		keys = append(keys, info.UserID+"/"+rel)
	}

	if err := h.store.Delete(c.Request.Context(), keys); err != nil {
		h.logger.Error("delete failed", "user_id", info.UserID, "count", len(keys), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(keys)})
}

// Download handles POST /v1/files/download: a presigned GET URL for one
// object the caller owns.
func (h *FilesHandler) Download(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rel, ok := cleanRelPath(req.Key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	fullKey := info.UserID + "/" + rel

	if _, err := h.store.Head(c.Request.Context(), fullKey); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	url, err := h.store.PresignGet(c.Request.Context(), fullKey, downloadURLTTL)
	if err != nil {
		h.logger.Error("presign download failed", "user_id", info.UserID, "key", rel, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}

	c.JSON(http.StatusOK, datatypes.DownloadResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(downloadURLTTL),
	})
}

// CreateFolder handles POST /v1/folders: writes the zero-byte "path/"
// marker that makes an empty virtual folder visible in listings.
func (h *FilesHandler) CreateFolder(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rel, ok := cleanRelPath(req.Path)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	if err := h.store.PutEmpty(c.Request.Context(), info.UserID+"/"+rel+"/"); err != nil {
		h.logger.Error("create folder failed", "user_id", info.UserID, "path", rel, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": rel})
}

// DeleteFolder handles DELETE /v1/folders: removes the marker and every
// object under the folder, in store-limit batches.
func (h *FilesHandler) DeleteFolder(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req datatypes.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rel, ok := cleanRelPath(req.Path)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	// Flat listing (no delimiter) walks the whole subtree.
	listing, err := h.store.List(c.Request.Context(), info.UserID+"/"+rel+"/", "")
	if err != nil {
		h.logger.Error("folder listing failed", "user_id", info.UserID, "path", rel, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}

	keys := make([]string, 0, len(listing.Objects))
	for _, obj := range listing.Objects {
		keys = append(keys, obj.Key)
	}

	deleted := len(keys)
	for len(keys) > 0 {
		batch := keys
		if len(batch) > deleteBatchSize {
			batch = keys[:deleteBatchSize]
		}
		if err := h.store.Delete(c.Request.Context(), batch); err != nil {
			h.logger.Error("folder delete failed", "user_id", info.UserID, "path", rel, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		keys = keys[len(batch):]
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// cleanRelPath validates an owner-relative path: no traversal, no absolute
// paths, no empty result. Returns the cleaned path.
func cleanRelPath(p string) (string, bool) {
	cleaned := path.Clean(strings.TrimSuffix(p, "/"))
	if cleaned == "." || cleaned == "/" || cleaned == "" ||
		strings.HasPrefix(cleaned, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
