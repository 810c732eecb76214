// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process ObjectStore used by tests and local
// development. It models the subset of S3 semantics the gateway relies on:
// multipart sessions keyed by upload ID, prefix+delimiter listing, and
// opaque presigned URLs (returned as "memory://" pseudo-URLs).
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]ObjectInfo
	sessions map[string]*memorySession
}

type memorySession struct {
	key   string
	parts map[int]string // part number -> etag
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]ObjectInfo),
		sessions: make(map[string]*memorySession),
	}
}

func (m *MemoryStore) CreateMultipart(_ context.Context, key, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.sessions[id] = &memorySession{key: key, parts: make(map[int]string)}
	return id, nil
}

func (m *MemoryStore) PresignPart(_ context.Context, key, uploadID string, partNumber int, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[uploadID]; !ok {
		return "", fmt.Errorf("unknown upload session %q", uploadID)
	}
	return fmt.Sprintf("memory://%s/%s/part/%d", uploadID, key, partNumber), nil
}

// RecordPart registers an uploaded part, standing in for the PUT a real
// client would issue against the presigned URL.
func (m *MemoryStore) RecordPart(uploadID string, partNumber int, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[uploadID]; ok {
		sess.parts[partNumber] = etag
	}
}

func (m *MemoryStore) CompleteMultipart(_ context.Context, key, uploadID string, parts []CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[uploadID]
	if !ok {
		return "", fmt.Errorf("unknown upload session %q", uploadID)
	}
	if sess.key != key {
		return "", fmt.Errorf("session %q is for key %q, not %q", uploadID, sess.key, key)
	}
	delete(m.sessions, uploadID)

	m.objects[key] = ObjectInfo{
		Key:          key,
		Size:         int64(len(parts)), // size is opaque to the fake
		LastModified: time.Now(),
		ETag:         uuid.New().String(),
	}
	return "memory://" + key, nil
}

func (m *MemoryStore) AbortMultipart(_ context.Context, _ string, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, uploadID)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix, delimiter string) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing := &Listing{}
	prefixSeen := make(map[string]bool)

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !prefixSeen[cp] {
					prefixSeen[cp] = true
					listing.CommonPrefixes = append(listing.CommonPrefixes, cp)
				}
				continue
			}
		}
		listing.Objects = append(listing.Objects, m.objects[key])
	}
	return listing, nil
}

func (m *MemoryStore) PutEmpty(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = ObjectInfo{Key: key, LastModified: time.Now()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("no such object %q", key)
	}
	return "memory://download/" + key, nil
}

func (m *MemoryStore) Head(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %q", key)
	}
	return &obj, nil
}

// SessionCount reports open multipart sessions. Test helper.
func (m *MemoryStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Compile-time interface check.
var _ ObjectStore = (*MemoryStore)(nil)
