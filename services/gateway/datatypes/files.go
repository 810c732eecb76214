// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains types for file and folder listing, deletion, download,
// and search pass-through. For upload types, see upload.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var filesValidate = validator.New()

// =============================================================================
// File / Folder Types
// =============================================================================

// FileInfo is one object in a listing, with the owner prefix already
// stripped from Key.
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// ListFilesResponse is the body for GET /v1/files.
//
// Folders are virtual: they are the common prefixes the object store
// reports under the requested prefix, plus any zero-byte "key/" markers.
type ListFilesResponse struct {
	Files   []FileInfo `json:"files"`
	Folders []string   `json:"folders"`
	Prefix  string     `json:"prefix"`
}

// DeleteFilesRequest removes one or more objects under the caller's
// namespace. Keys are owner-relative.
type DeleteFilesRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,max=1000,dive,required"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *DeleteFilesRequest) Validate() error {
	return filesValidate.Struct(r)
}

// DownloadRequest asks for a presigned GET URL for one object.
type DownloadRequest struct {
	Key string `json:"key" validate:"required,max=1024"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *DownloadRequest) Validate() error {
	return filesValidate.Struct(r)
}

// DownloadResponse carries the time-limited URL.
type DownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FolderRequest creates or deletes a virtual folder marker.
type FolderRequest struct {
	// Path is the owner-relative folder path without trailing slash,
	// e.g. "reports/2025".
	Path string `json:"path" validate:"required,max=1024"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *FolderRequest) Validate() error {
	return filesValidate.Struct(r)
}

// =============================================================================
// Search Types
// =============================================================================

// SearchRequest is the body for POST /v1/search, forwarded to the
// vector-search backend scoped to the caller's folders.
type SearchRequest struct {
	Query   string   `json:"query" validate:"required,max=32768"`
	Folders []string `json:"folders,omitempty" validate:"max=100"`
	Page    string   `json:"page,omitempty"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *SearchRequest) Validate() error {
	return filesValidate.Struct(r)
}

// SearchHit is one matching document from the search backend.
type SearchHit struct {
	FileID     string         `json:"file_id"`
	Filename   string         `json:"filename"`
	Score      float64        `json:"score"`
	Content    []string       `json:"content"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SearchResponse mirrors the search backend's response shape.
type SearchResponse struct {
	Response string      `json:"response"`
	Data     []SearchHit `json:"data"`
	HasMore  bool        `json:"has_more"`
	NextPage string      `json:"next_page,omitempty"`
}
