// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for the chunked multipart
// upload endpoints. For file listing types, see files.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// ChunkSize is the fixed part size for multipart uploads.
	// Clients split files into 5 MiB chunks; the last part may be smaller.
	ChunkSize int64 = 5 * 1024 * 1024

	// MaxObjectPathBytes bounds the object path to keep keys S3-legal.
	MaxObjectPathBytes = 1024

	// MaxUploadParts mirrors the S3 multipart limit of 10,000 parts.
	MaxUploadParts = 10000
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// uploadValidate is the validator instance for upload datatypes.
var uploadValidate = validator.New()

// =============================================================================
// Upload Session Types
// =============================================================================

// UploadSession describes one in-flight multipart upload.
//
// # Description
//
// Created when a client declares an upload, mutated by part-completion
// acknowledgements on the client side (ETag collection), and destroyed on
// finalize or abandonment. Owned exclusively by the upload orchestrator for
// its lifetime; no component retains it afterward. An abandoned session
// simply expires server-side once its presigned URLs lapse.
type UploadSession struct {
	// SessionID is the object store's multipart upload ID.
	SessionID string `json:"session_id"`

	// ObjectKey is the full key the finished object will live at,
	// rooted at the owner's namespace ("<userID>/...").
	ObjectKey string `json:"object_key"`

	// PartCount is ceil(TotalSize / ChunkSize).
	PartCount int `json:"part_count"`

	// PartSize is the fixed chunk size used for every part but the last.
	PartSize int64 `json:"part_size"`

	// TotalSize is the declared file size in bytes.
	TotalSize int64 `json:"total_size"`
}

// PartResult is one successfully uploaded part.
//
// Part numbers are 1-based and must be contiguous with no gaps across the
// full set handed to finalize. The ETag is the opaque content fingerprint
// the object store returned for the part.
type PartResult struct {
	PartNumber int    `json:"part_number" validate:"required,min=1"`
	ETag       string `json:"etag" validate:"required"`
}

// =============================================================================
// Request / Response Types
// =============================================================================

// InitializeUploadRequest declares a new upload.
//
// PartCount is declared by the client and cross-checked against
// ceil(TotalSize/ChunkSize) by the orchestrator; a mismatch is rejected.
type InitializeUploadRequest struct {
	// ObjectPath is the path under the caller's namespace, e.g.
	// "reports/q1.pdf". The caller's userID prefix is added server-side.
	ObjectPath string `json:"object_path" validate:"required,max=1024"`

	// PartCount is the number of 5 MiB chunks the client will upload.
	PartCount int `json:"part_count" validate:"required,min=1,max=10000"`

	// TotalSize is the file size in bytes.
	TotalSize int64 `json:"total_size" validate:"required,min=1"`

	// ContentType is the file MIME type, stored on the finished object.
	ContentType string `json:"content_type,omitempty"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *InitializeUploadRequest) Validate() error {
	return uploadValidate.Struct(r)
}

// InitializeUploadResponse carries the session and one presigned URL per part.
//
// PartURLs is keyed by part number (1-based) so a client can retry the map
// lookup without positional math.
type InitializeUploadResponse struct {
	SessionID string         `json:"session_id"`
	ObjectKey string         `json:"object_key"`
	PartCount int            `json:"part_count"`
	PartSize  int64          `json:"part_size"`
	PartURLs  map[int]string `json:"part_urls"`
}

// CompleteUploadRequest finalizes a multipart upload.
type CompleteUploadRequest struct {
	SessionID string       `json:"session_id" validate:"required"`
	ObjectKey string       `json:"object_key" validate:"required"`
	Parts     []PartResult `json:"parts" validate:"required,min=1,dive"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *CompleteUploadRequest) Validate() error {
	return uploadValidate.Struct(r)
}

// CompleteUploadResponse reports the committed object. Size is the
// reserved byte count the commit converted to usage; zero when the
// session had no reservation on record.
type CompleteUploadResponse struct {
	Location  string `json:"location"`
	ObjectKey string `json:"object_key"`
	Size      int64  `json:"size,omitempty"`
}

// AbortUploadRequest abandons a multipart upload and releases its
// quota reservation.
type AbortUploadRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	ObjectKey string `json:"object_key" validate:"required"`
}

// Validate checks field constraints. Returns a validator error on failure.
func (r *AbortUploadRequest) Validate() error {
	return uploadValidate.Struct(r)
}

// =============================================================================
// Helpers
// =============================================================================

// PartCountFor returns ceil(totalSize / ChunkSize) for a declared file size.
// Zero and negative sizes return 0.
func PartCountFor(totalSize int64) int {
	if totalSize <= 0 {
		return 0
	}
	return int((totalSize + ChunkSize - 1) / ChunkSize)
}

// PartRange returns the byte range [start, end) of a 1-based part number
// within a file of totalSize bytes.
func PartRange(partNumber int, totalSize int64) (start, end int64) {
	start = int64(partNumber-1) * ChunkSize
	end = start + ChunkSize
	if end > totalSize {
		end = totalSize
	}
	return start, end
}
