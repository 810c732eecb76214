// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Prgm-code/index0/pkg/extensions"
)

// casRetries bounds the conditional-write loop. Three attempts rides out
// ordinary contention; past that the caller gets ErrVersionConflict.
const casRetries = 3

// HTTPMetadataStore reads and writes per-user metadata blobs over the
// identity provider's admin API.
//
// # Description
//
// GET /users/{id}/metadata returns the blob with an ETag; PUT with If-Match
// writes it back conditionally. A 412 means another writer won the race, so
// Update re-reads and reapplies its mutation, giving compare-and-swap
// semantics over plain HTTP. Providers that ignore If-Match degrade to
// read-then-write; the lost-update race comes back and the deployment notes
// must say so.
type HTTPMetadataStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPMetadataStore wires a store for the provider at baseURL.
func NewHTTPMetadataStore(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *HTTPMetadataStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPMetadataStore{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Get fetches the user's blob. A 404 is a user with no blob yet: empty
// metadata, no error.
func (s *HTTPMetadataStore) Get(ctx context.Context, userID string) (extensions.Metadata, error) {
	md, _, err := s.fetch(ctx, userID)
	return md, err
}

// Update applies fn under a conditional-write loop.
func (s *HTTPMetadataStore) Update(ctx context.Context, userID string, fn func(extensions.Metadata) extensions.Metadata) (extensions.Metadata, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		current, etag, err := s.fetch(ctx, userID)
		if err != nil {
			return nil, err
		}

		next := fn(current.Clone())
		if next == nil {
			return current, nil
		}

		conflict, err := s.put(ctx, userID, next, etag)
		if err != nil {
			return nil, err
		}
		if !conflict {
			return next, nil
		}
		s.logger.Debug("metadata write conflict, retrying",
			"user_id", userID, "attempt", attempt+1)
	}
	return nil, extensions.ErrVersionConflict
}

func (s *HTTPMetadataStore) metadataURL(userID string) string {
	return fmt.Sprintf("%s/users/%s/metadata", s.baseURL, url.PathEscape(userID))
}

func (s *HTTPMetadataStore) fetch(ctx context.Context, userID string) (extensions.Metadata, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metadataURL(userID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build metadata request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch metadata for %q: %w", userID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var md extensions.Metadata
		if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
			return nil, "", fmt.Errorf("decode metadata for %q: %w", userID, err)
		}
		if md == nil {
			md = extensions.NewMetadata()
		}
		return md, resp.Header.Get("ETag"), nil
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return extensions.NewMetadata(), "", nil
	default:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, "", fmt.Errorf("metadata fetch for %q returned status %d", userID, resp.StatusCode)
	}
}

// put writes the blob conditionally. Returns conflict=true on 412.
func (s *HTTPMetadataStore) put(ctx context.Context, userID string, md extensions.Metadata, etag string) (bool, error) {
	body, err := json.Marshal(md)
	if err != nil {
		return false, fmt.Errorf("marshal metadata for %q: %w", userID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.metadataURL(userID), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build metadata write: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if etag != "" {
		req.Header.Set("If-Match", etag)
	} else {
		// First write for this user must not clobber a concurrent one.
		req.Header.Set("If-None-Match", "*")
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("write metadata for %q: %w", userID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return true, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return false, nil
	default:
		return false, fmt.Errorf("metadata write for %q returned status %d", userID, resp.StatusCode)
	}
}

func (s *HTTPMetadataStore) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

// Compile-time interface check.
var _ extensions.MetadataStore = (*HTTPMetadataStore)(nil)
