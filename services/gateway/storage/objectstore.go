// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the gateway's object store client.
//
// The gateway keeps all documents in one S3-compatible bucket. Every key is
// rooted at the owning user's ID ("<userID>/path/to/file.pdf"), and virtual
// folders are zero-byte objects whose key ends in "/". The package exposes
// an interface so handlers and the upload orchestrator can be tested
// against an in-memory fake; the production implementation in s3.go wraps
// aws-sdk-go-v2.
package storage

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// CompletedPart pairs a part number with the ETag the store returned for it.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// Listing is the result of a prefix+delimiter list call.
//
// CommonPrefixes are the store's "directories": key groups collapsed at the
// delimiter. Objects are the direct children.
type Listing struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
}

// ObjectStore is the contract the gateway needs from an S3-compatible store.
//
// # Description
//
// Multipart session methods map 1:1 to the S3 multipart protocol:
// CreateMultipart registers a session, PresignPart issues one time-limited
// upload URL for a part, CompleteMultipart commits the parts into a single
// addressable object, AbortMultipart discards them.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// CreateMultipart registers a multipart session and returns its upload ID.
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)

	// PresignPart returns a presigned PUT URL for one part of a session.
	// partNumber is 1-based. The URL expires after expires.
	PresignPart(ctx context.Context, key, uploadID string, partNumber int, expires time.Duration) (string, error)

	// CompleteMultipart commits the session. Parts must be sorted by part
	// number before the call; implementations do not reorder.
	// Returns the committed object's location URL.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error)

	// AbortMultipart discards a session and any uploaded parts.
	AbortMultipart(ctx context.Context, key, uploadID string) error

	// List returns objects and common prefixes under prefix, collapsed at
	// delimiter ("/" for virtual folders; empty for a flat listing).
	List(ctx context.Context, prefix, delimiter string) (*Listing, error)

	// PutEmpty writes a zero-byte object. Used for "key/" folder markers.
	PutEmpty(ctx context.Context, key string) error

	// Delete removes up to 1000 objects in one call.
	Delete(ctx context.Context, keys []string) error

	// PresignGet returns a presigned download URL for one object.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Head returns metadata for one object, or an error if it is missing.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
}
