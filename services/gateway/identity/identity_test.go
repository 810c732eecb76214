// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Prgm-code/index0/pkg/extensions"
)

func TestJWTProvider_RoundTrip(t *testing.T) {
	t.Parallel()

	p := NewJWTProvider([]byte("test-secret"), "index0")
	token, err := p.IssueToken("u1", "u1@example.com", []string{"member"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	info, err := p.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if info.UserID != "u1" || info.Email != "u1@example.com" {
		t.Errorf("info = %+v", info)
	}
	if !info.HasRole("member") {
		t.Error("roles not carried through")
	}
}

func TestJWTProvider_Rejections(t *testing.T) {
	t.Parallel()

	p := NewJWTProvider([]byte("test-secret"), "index0")

	expired, _ := func() (string, error) {
		// Issue with negative TTL so the token is already expired.
		return p.IssueToken("u1", "", nil, -time.Minute)
	}()
	otherKey := NewJWTProvider([]byte("other-secret"), "index0")
	wrongSig, _ := otherKey.IssueToken("u1", "", nil, time.Hour)
	otherIssuer := NewJWTProvider([]byte("test-secret"), "someone-else")
	wrongIss, _ := otherIssuer.IssueToken("u1", "", nil, time.Hour)

	cases := []struct {
		name, token string
	}{
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong signature", wrongSig},
		{"wrong issuer", wrongIss},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Validate(context.Background(), tc.token)
			if !errors.Is(err, extensions.ErrUnauthorized) {
				t.Errorf("error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

// metadataBackend is a minimal provider admin API with ETag conditional
// writes, used to exercise the CAS loop.
type metadataBackend struct {
	mu      sync.Mutex
	blob    map[string]any
	version int
	// conflictOnce forces one 412 to make Update retry.
	conflictOnce bool
}

func (b *metadataBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if b.blob == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", fmt.Sprintf("%d", b.version))
		_ = json.NewEncoder(w).Encode(b.blob)
	case http.MethodPut:
		if b.conflictOnce {
			b.conflictOnce = false
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		match := r.Header.Get("If-Match")
		if b.blob != nil && match != fmt.Sprintf("%d", b.version) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		var next map[string]any
		_ = json.NewDecoder(r.Body).Decode(&next)
		b.blob = next
		b.version++
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestHTTPMetadataStore_GetMissingUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&metadataBackend{})
	defer srv.Close()

	store := NewHTTPMetadataStore(srv.URL, "", srv.Client(), nil)
	md, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if md == nil || md.Len() != 0 {
		t.Errorf("md = %v, want empty non-nil blob", md)
	}
}

func TestHTTPMetadataStore_UpdateRetriesOnConflict(t *testing.T) {
	t.Parallel()

	backend := &metadataBackend{conflictOnce: true}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	store := NewHTTPMetadataStore(srv.URL, "", srv.Client(), nil)
	md, err := store.Update(context.Background(), "u1", func(md extensions.Metadata) extensions.Metadata {
		return md.Set("quota_bytes", int64(42))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := md.GetInt64("quota_bytes"); v != 42 {
		t.Errorf("quota = %d, want 42", v)
	}

	// The value survived the forced 412 + retry.
	got, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, _ := got.GetInt64("quota_bytes"); v != 42 {
		t.Errorf("persisted quota = %d, want 42", v)
	}
}

func TestHTTPMetadataStore_NilMutationLeavesBlobAlone(t *testing.T) {
	t.Parallel()

	backend := &metadataBackend{blob: map[string]any{"k": "v"}, version: 7}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	store := NewHTTPMetadataStore(srv.URL, "", srv.Client(), nil)
	md, err := store.Update(context.Background(), "u1", func(extensions.Metadata) extensions.Metadata {
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := md.GetString("k"); v != "v" {
		t.Errorf("md = %v", md)
	}
	if backend.version != 7 {
		t.Error("nil mutation must not write")
	}
}
