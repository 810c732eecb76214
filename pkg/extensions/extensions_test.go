// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNopAuthProvider_Validate(t *testing.T) {
	t.Parallel()

	provider := &NopAuthProvider{}
	info, err := provider.Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if info.UserID != "local-user" {
		t.Errorf("Expected local-user, got %q", info.UserID)
	}
	if !info.HasRole("admin") {
		t.Error("Expected local-user to have admin role")
	}
}

func TestAuthInfo_HasRole(t *testing.T) {
	t.Parallel()

	info := &AuthInfo{UserID: "u1", Roles: []string{"member", "viewer"}}
	if !info.HasRole("member") {
		t.Error("Expected HasRole(member) to be true")
	}
	if info.HasRole("admin") {
		t.Error("Expected HasRole(admin) to be false")
	}
}

func TestMetadata_NumericNormalization(t *testing.T) {
	t.Parallel()

	// JSON round-trips write int64, read back float64. Both must work.
	md := NewMetadata().
		Set("as_int64", int64(42)).
		Set("as_int", 7).
		Set("as_float", float64(1024))

	for key, want := range map[string]int64{"as_int64": 42, "as_int": 7, "as_float": 1024} {
		got, ok := md.GetInt64(key)
		if !ok {
			t.Fatalf("GetInt64(%q) reported missing", key)
		}
		if got != want {
			t.Errorf("GetInt64(%q) = %d, want %d", key, got, want)
		}
	}

	if _, ok := md.GetInt64("missing"); ok {
		t.Error("GetInt64 on missing key should report false")
	}
}

func TestMetadata_GetTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	md := NewMetadata().
		Set("as_time", ts).
		Set("as_rfc3339", ts.Format(time.RFC3339)).
		Set("as_millis", float64(ts.UnixMilli()))

	for _, key := range []string{"as_time", "as_rfc3339", "as_millis"} {
		got, ok := md.GetTime(key)
		if !ok {
			t.Fatalf("GetTime(%q) reported missing", key)
		}
		if !got.Equal(ts) {
			t.Errorf("GetTime(%q) = %v, want %v", key, got, ts)
		}
	}
}

func TestMetadata_CloneIsolation(t *testing.T) {
	t.Parallel()

	original := NewMetadata().Set("quota_bytes", int64(100))
	clone := original.Clone()
	clone.Set("quota_bytes", int64(200))

	got, _ := original.GetInt64("quota_bytes")
	if got != 100 {
		t.Errorf("Mutating clone changed original: got %d", got)
	}

	var nilMd Metadata
	cloned := nilMd.Clone()
	cloned.Set("ok", true)
	if !cloned.Has("ok") {
		t.Error("Clone of nil Metadata should be usable")
	}
}

func TestInMemoryMetadataStore_GetMissingUser(t *testing.T) {
	t.Parallel()

	store := NewInMemoryMetadataStore()
	md, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if md == nil || md.Len() != 0 {
		t.Errorf("Expected empty metadata for unknown user, got %v", md)
	}
}

func TestInMemoryMetadataStore_UpdateIsAtomic(t *testing.T) {
	t.Parallel()

	store := NewInMemoryMetadataStore()
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, _ = store.Update(ctx, "u1", func(md Metadata) Metadata {
					count, _ := md.GetInt64("count")
					return md.Set("count", count+1)
				})
			}
		}()
	}
	wg.Wait()

	md, _ := store.Get(ctx, "u1")
	count, _ := md.GetInt64("count")
	if count != workers*perWorker {
		t.Errorf("Lost updates: count = %d, want %d", count, workers*perWorker)
	}
}

func TestInMemoryMetadataStore_UpdateNilLeavesUnchanged(t *testing.T) {
	t.Parallel()

	store := NewInMemoryMetadataStore()
	ctx := context.Background()

	_, _ = store.Update(ctx, "u1", func(md Metadata) Metadata {
		return md.Set("k", "v")
	})
	after, err := store.Update(ctx, "u1", func(md Metadata) Metadata {
		return nil
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if v, _ := after.GetString("k"); v != "v" {
		t.Errorf("nil mutation should leave blob unchanged, got %v", after)
	}
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if opts.AuthProvider == nil {
		t.Error("DefaultOptions should set AuthProvider")
	}
	if opts.MetadataStore == nil {
		t.Error("DefaultOptions should set MetadataStore")
	}

	custom := opts.WithAuth(&NopAuthProvider{}).WithMetadataStore(NewInMemoryMetadataStore())
	if custom.AuthProvider == nil || custom.MetadataStore == nil {
		t.Error("With* builders should not clear fields")
	}
}
