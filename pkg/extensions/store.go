// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"sync"
)

// ErrVersionConflict is returned by MetadataStore.Update implementations when
// a conditional write loses a race and the retry budget is exhausted.
var ErrVersionConflict = errors.New("metadata version conflict")

// MetadataStore persists per-user Metadata blobs at the identity provider.
//
// # Description
//
// The gateway never owns user state; quota, usage, reservations, and
// rate-limit windows all live in the identity provider's metadata blob.
// This interface abstracts that external storage so rate limiting and the
// upload orchestrator can be tested against an in-memory fake.
//
// Update takes a mutation function rather than a value so implementations
// can run a compare-and-swap loop: read blob + version, apply fn, write
// conditionally, retry on conflict. Backends without conditional writes
// degrade to read-then-write; that reintroduces the lost-update race and
// implementations must document it rather than hide it.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type MetadataStore interface {
	// Get returns the user's metadata blob. A user with no stored blob
	// yields an empty (non-nil) Metadata and no error.
	Get(ctx context.Context, userID string) (Metadata, error)

	// Update applies fn to the current blob and persists the result.
	// fn receives a copy; returning nil leaves the blob unchanged.
	// The persisted blob is returned.
	Update(ctx context.Context, userID string, fn func(Metadata) Metadata) (Metadata, error)
}

// InMemoryMetadataStore is a MetadataStore backed by a process-local map.
//
// Used for local single-user deployments and as the test double for
// components that consume metadata. Updates are atomic under a mutex, so
// it behaves like a backend with conditional writes.
type InMemoryMetadataStore struct {
	mu    sync.Mutex
	blobs map[string]Metadata
}

// NewInMemoryMetadataStore creates an empty in-memory store.
func NewInMemoryMetadataStore() *InMemoryMetadataStore {
	return &InMemoryMetadataStore{blobs: make(map[string]Metadata)}
}

// Get returns a copy of the user's blob, or an empty blob if none exists.
func (s *InMemoryMetadataStore) Get(_ context.Context, userID string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[userID].Clone(), nil
}

// Update applies fn under the store lock, making the read-modify-write atomic.
func (s *InMemoryMetadataStore) Update(_ context.Context, userID string, fn func(Metadata) Metadata) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.blobs[userID].Clone())
	if next == nil {
		return s.blobs[userID].Clone(), nil
	}
	s.blobs[userID] = next
	return next.Clone(), nil
}

// Compile-time interface compliance check.
var _ MetadataStore = (*InMemoryMetadataStore)(nil)
