// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package upload implements the chunked multipart upload orchestration.
//
// The gateway never proxies file bytes. It opens a multipart session against
// the object store, hands the client one presigned URL per 5 MiB part, and
// later commits or discards the session. Storage quota is enforced with an
// explicit byte reservation recorded in the caller's identity metadata at
// initialize time, so two concurrent uploads cannot both squeeze under the
// quota line; the reservation is converted to usage at finalize or released
// at abort.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/storage"
)

var tracer = otel.Tracer("index0/gateway/upload")

// Metadata keys for per-user storage bookkeeping.
const (
	keyQuotaBytes   = "quota_bytes"
	keyUsageBytes   = "usage_bytes"
	keyReservations = "upload_reservations"
)

// PresignTTL is how long part URLs stay valid. A session whose URLs have
// lapsed is effectively abandoned; the store garbage-collects it.
const PresignTTL = time.Hour

// Orchestrator coordinates upload sessions between the object store and the
// caller's quota bookkeeping.
type Orchestrator struct {
	store        storage.ObjectStore
	meta         extensions.MetadataStore
	logger       *slog.Logger
	defaultQuota int64
}

// NewOrchestrator wires an orchestrator.
//
// defaultQuota applies to users whose metadata carries no quota_bytes field;
// zero means unlimited.
func NewOrchestrator(store storage.ObjectStore, meta extensions.MetadataStore, logger *slog.Logger, defaultQuota int64) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:        store,
		meta:         meta,
		logger:       logger,
		defaultQuota: defaultQuota,
	}
}

// Initialize opens a multipart session for one file.
//
// # Description
//
// Validates the declared geometry (part_count must equal
// ceil(total_size/ChunkSize)), reserves total_size bytes against the
// caller's quota, and returns the session ID plus one presigned PUT URL per
// part. If the reservation fails the session is never visible to the
// caller; if presigning fails partway the session is aborted and the
// reservation released.
//
// # Outputs
//
//   - *datatypes.InitializeUploadResponse: session and part URLs
//   - error: datatypes.ErrQuotaExceeded, or a wrapped storage error
func (o *Orchestrator) Initialize(ctx context.Context, userID string, req *datatypes.InitializeUploadRequest) (*datatypes.InitializeUploadResponse, error) {
	ctx, span := tracer.Start(ctx, "upload.Initialize")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initialize request: %w", err)
	}
	if want := datatypes.PartCountFor(req.TotalSize); req.PartCount != want {
		return nil, fmt.Errorf("part_count %d does not match ceil(%d/%d)=%d",
			req.PartCount, req.TotalSize, datatypes.ChunkSize, want)
	}

	objectKey, err := buildObjectKey(userID, req.ObjectPath)
	if err != nil {
		return nil, err
	}

	sessionID, err := o.store.CreateMultipart(ctx, objectKey, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrTransport, err)
	}

	if err := o.reserve(ctx, userID, sessionID, req.TotalSize, req.PartCount); err != nil {
		if abortErr := o.store.AbortMultipart(ctx, objectKey, sessionID); abortErr != nil {
			o.logger.Warn("failed to abort session after reservation failure",
				"session_id", sessionID, "error", abortErr)
		}
		return nil, err
	}

	urls := make(map[int]string, req.PartCount)
	for part := 1; part <= req.PartCount; part++ {
		url, err := o.store.PresignPart(ctx, objectKey, sessionID, part, PresignTTL)
		if err != nil {
			o.rollback(ctx, userID, sessionID, objectKey)
			return nil, fmt.Errorf("%w: presign part %d: %v", datatypes.ErrTransport, part, err)
		}
		urls[part] = url
	}

	o.logger.Info("upload session opened",
		"user_id", userID,
		"object_key", objectKey,
		"session_id", sessionID,
		"part_count", req.PartCount,
		"total_size", req.TotalSize)

	return &datatypes.InitializeUploadResponse{
		SessionID: sessionID,
		ObjectKey: objectKey,
		PartCount: req.PartCount,
		PartSize:  datatypes.ChunkSize,
		PartURLs:  urls,
	}, nil
}

// Finalize commits a multipart session.
//
// The submitted part set must cover exactly 1..partCount with no duplicates
// and no gaps; anything else returns datatypes.ErrIncompleteUpload and the
// session is left open for the client to retry. On success the quota
// reservation is converted into recorded usage.
func (o *Orchestrator) Finalize(ctx context.Context, userID string, req *datatypes.CompleteUploadRequest) (*datatypes.CompleteUploadResponse, error) {
	ctx, span := tracer.Start(ctx, "upload.Finalize")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid complete request: %w", err)
	}
	if err := checkOwnership(userID, req.ObjectKey); err != nil {
		return nil, err
	}

	res, found := o.lookupReservation(ctx, userID, req.SessionID)
	wantParts := len(req.Parts)
	if found {
		wantParts = res.parts
	}
	if err := validatePartSet(req.Parts, wantParts); err != nil {
		return nil, err
	}

	completed := make([]storage.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		completed[i] = storage.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	location, err := o.store.CompleteMultipart(ctx, req.ObjectKey, req.SessionID, completed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrTransport, err)
	}

	if found {
		if err := o.convertReservation(ctx, userID, req.SessionID); err != nil {
			// The object is committed; usage bookkeeping is best effort here.
			o.logger.Warn("failed to convert reservation to usage",
				"user_id", userID, "session_id", req.SessionID, "error", err)
		}
	}

	o.logger.Info("upload finalized",
		"user_id", userID,
		"object_key", req.ObjectKey,
		"session_id", req.SessionID,
		"parts", len(req.Parts))

	return &datatypes.CompleteUploadResponse{
		Location:  location,
		ObjectKey: req.ObjectKey,
		Size:      res.bytes,
	}, nil
}

// Abort discards a multipart session and releases its quota reservation.
func (o *Orchestrator) Abort(ctx context.Context, userID string, req *datatypes.AbortUploadRequest) error {
	ctx, span := tracer.Start(ctx, "upload.Abort")
	defer span.End()

	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid abort request: %w", err)
	}
	if err := checkOwnership(userID, req.ObjectKey); err != nil {
		return err
	}

	if err := o.store.AbortMultipart(ctx, req.ObjectKey, req.SessionID); err != nil {
		return fmt.Errorf("%w: %v", datatypes.ErrTransport, err)
	}
	if err := o.releaseReservation(ctx, userID, req.SessionID); err != nil {
		o.logger.Warn("failed to release reservation",
			"user_id", userID, "session_id", req.SessionID, "error", err)
	}

	o.logger.Info("upload aborted",
		"user_id", userID, "session_id", req.SessionID)
	return nil
}

// =============================================================================
// Quota Bookkeeping
// =============================================================================

type reservation struct {
	bytes int64
	parts int
}

// reserve records a pending-byte reservation for one session, rejecting it
// when usage + existing reservations + size would exceed the quota.
func (o *Orchestrator) reserve(ctx context.Context, userID, sessionID string, size int64, parts int) error {
	var denied bool
	_, err := o.meta.Update(ctx, userID, func(md extensions.Metadata) extensions.Metadata {
		quota, ok := md.GetInt64(keyQuotaBytes)
		if !ok {
			quota = o.defaultQuota
		}
		usage, _ := md.GetInt64(keyUsageBytes)
		reserved := reservedTotal(md)

		if quota > 0 && usage+reserved+size > quota {
			denied = true
			return nil
		}
		return md.Set(keyReservations, setReservation(md, sessionID, reservation{bytes: size, parts: parts}))
	})
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	if denied {
		return datatypes.ErrQuotaExceeded
	}
	return nil
}

// convertReservation moves a session's reserved bytes into recorded usage.
func (o *Orchestrator) convertReservation(ctx context.Context, userID, sessionID string) error {
	_, err := o.meta.Update(ctx, userID, func(md extensions.Metadata) extensions.Metadata {
		res, ok := getReservation(md, sessionID)
		if !ok {
			return nil
		}
		usage, _ := md.GetInt64(keyUsageBytes)
		md = md.Set(keyUsageBytes, usage+res.bytes)
		return md.Set(keyReservations, deleteReservation(md, sessionID))
	})
	return err
}

// releaseReservation drops a session's reservation without touching usage.
func (o *Orchestrator) releaseReservation(ctx context.Context, userID, sessionID string) error {
	_, err := o.meta.Update(ctx, userID, func(md extensions.Metadata) extensions.Metadata {
		if _, ok := getReservation(md, sessionID); !ok {
			return nil
		}
		return md.Set(keyReservations, deleteReservation(md, sessionID))
	})
	return err
}

func (o *Orchestrator) lookupReservation(ctx context.Context, userID, sessionID string) (reservation, bool) {
	md, err := o.meta.Get(ctx, userID)
	if err != nil {
		o.logger.Warn("metadata lookup failed", "user_id", userID, "error", err)
		return reservation{}, false
	}
	return getReservation(md, sessionID)
}

// rollback aborts a half-initialized session and releases its reservation.
func (o *Orchestrator) rollback(ctx context.Context, userID, sessionID, objectKey string) {
	if err := o.store.AbortMultipart(ctx, objectKey, sessionID); err != nil {
		o.logger.Warn("rollback abort failed", "session_id", sessionID, "error", err)
	}
	if err := o.releaseReservation(ctx, userID, sessionID); err != nil {
		o.logger.Warn("rollback release failed", "session_id", sessionID, "error", err)
	}
}

// =============================================================================
// Reservation Map Encoding
// =============================================================================

// Reservations live in the metadata blob as a nested map keyed by session
// ID. Values round-trip through JSON, so the readers below accept both the
// in-process types and the post-decode map[string]any / float64 forms.

func reservationsMap(md extensions.Metadata) map[string]any {
	raw, ok := md.Get(keyReservations)
	if !ok {
		return map[string]any{}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func getReservation(md extensions.Metadata, sessionID string) (reservation, bool) {
	entry, ok := reservationsMap(md)[sessionID].(map[string]any)
	if !ok {
		return reservation{}, false
	}
	em := extensions.Metadata(entry)
	bytes, _ := em.GetInt64("bytes")
	parts, _ := em.GetInt64("parts")
	return reservation{bytes: bytes, parts: int(parts)}, true
}

func setReservation(md extensions.Metadata, sessionID string, res reservation) map[string]any {
	m := reservationsMap(md)
	m[sessionID] = map[string]any{"bytes": res.bytes, "parts": res.parts}
	return m
}

func deleteReservation(md extensions.Metadata, sessionID string) map[string]any {
	m := reservationsMap(md)
	delete(m, sessionID)
	return m
}

func reservedTotal(md extensions.Metadata) int64 {
	var total int64
	for _, v := range reservationsMap(md) {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		bytes, _ := extensions.Metadata(entry).GetInt64("bytes")
		total += bytes
	}
	return total
}

// =============================================================================
// Validation Helpers
// =============================================================================

// buildObjectKey roots a client path at the owner's namespace and rejects
// traversal attempts.
func buildObjectKey(userID, objectPath string) (string, error) {
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == "/" ||
		strings.HasPrefix(cleaned, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return userID + "/" + cleaned, nil
}

// checkOwnership requires objectKey to sit in the caller's namespace.
func checkOwnership(userID, objectKey string) error {
	if !strings.HasPrefix(objectKey, userID+"/") {
		return datatypes.ErrUnauthorized
	}
	return nil
}

// validatePartSet requires the submitted parts to cover exactly
// 1..wantParts with no duplicates.
func validatePartSet(parts []datatypes.PartResult, wantParts int) error {
	if len(parts) != wantParts {
		return fmt.Errorf("%w: got %d parts, want %d", datatypes.ErrIncompleteUpload, len(parts), wantParts)
	}
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > wantParts {
			return fmt.Errorf("%w: part number %d out of range 1..%d", datatypes.ErrIncompleteUpload, p.PartNumber, wantParts)
		}
		if seen[p.PartNumber] {
			return fmt.Errorf("%w: duplicate part number %d", datatypes.ErrIncompleteUpload, p.PartNumber)
		}
		seen[p.PartNumber] = true
	}
	return nil
}
