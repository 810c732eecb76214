// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upload

import (
	"context"
	"errors"
	"testing"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/storage"
)

func newTestOrchestrator(quota int64) (*Orchestrator, *storage.MemoryStore, *extensions.InMemoryMetadataStore) {
	store := storage.NewMemoryStore()
	meta := extensions.NewInMemoryMetadataStore()
	return NewOrchestrator(store, meta, nil, quota), store, meta
}

func initRequest(size int64) *datatypes.InitializeUploadRequest {
	return &datatypes.InitializeUploadRequest{
		ObjectPath: "reports/q1.pdf",
		PartCount:  datatypes.PartCountFor(size),
		TotalSize:  size,
	}
}

func TestInitialize_ReturnsURLPerPart(t *testing.T) {
	t.Parallel()
	orch, _, _ := newTestOrchestrator(0)

	size := 12 * int64(1024*1024) // 3 parts
	resp, err := orch.Initialize(context.Background(), "u1", initRequest(size))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if resp.ObjectKey != "u1/reports/q1.pdf" {
		t.Errorf("object key = %q, want owner-rooted key", resp.ObjectKey)
	}
	if resp.PartCount != 3 || len(resp.PartURLs) != 3 {
		t.Errorf("got %d part URLs for part count %d, want 3", len(resp.PartURLs), resp.PartCount)
	}
	for part := 1; part <= 3; part++ {
		if resp.PartURLs[part] == "" {
			t.Errorf("missing URL for part %d", part)
		}
	}
	if resp.PartSize != datatypes.ChunkSize {
		t.Errorf("part size = %d, want %d", resp.PartSize, datatypes.ChunkSize)
	}
}

func TestInitialize_RejectsGeometryMismatch(t *testing.T) {
	t.Parallel()
	orch, _, _ := newTestOrchestrator(0)

	req := initRequest(12 * 1024 * 1024)
	req.PartCount = 2 // should be 3
	if _, err := orch.Initialize(context.Background(), "u1", req); err == nil {
		t.Fatal("mismatched part_count should be rejected")
	}
}

func TestInitialize_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	orch, _, _ := newTestOrchestrator(0)

	for _, p := range []string{"../other-user/file", "/absolute", "..", "a/../../b"} {
		req := initRequest(1)
		req.ObjectPath = p
		if _, err := orch.Initialize(context.Background(), "u1", req); err == nil {
			t.Errorf("path %q should be rejected", p)
		}
	}
}

// TestInitialize_QuotaReservation verifies that pending uploads count against
// the quota immediately: a second upload that only fits if the first is
// ignored must be denied before any part is transferred.
func TestInitialize_QuotaReservation(t *testing.T) {
	t.Parallel()

	quota := 10 * int64(1024*1024)
	orch, store, _ := newTestOrchestrator(quota)
	ctx := context.Background()

	first, err := orch.Initialize(ctx, "u1", initRequest(6*1024*1024))
	if err != nil {
		t.Fatalf("first Initialize: %v", err)
	}

	// 6 MiB reserved + 6 MiB requested > 10 MiB quota.
	second := initRequest(6 * 1024 * 1024)
	second.ObjectPath = "reports/q2.pdf"
	_, err = orch.Initialize(ctx, "u1", second)
	if !errors.Is(err, datatypes.ErrQuotaExceeded) {
		t.Fatalf("second Initialize error = %v, want ErrQuotaExceeded", err)
	}
	// The denied session must not linger in the store.
	if n := store.SessionCount(); n != 1 {
		t.Errorf("open sessions = %d, want 1", n)
	}

	// Aborting the first releases its reservation and the retry fits.
	err = orch.Abort(ctx, "u1", &datatypes.AbortUploadRequest{
		SessionID: first.SessionID,
		ObjectKey: first.ObjectKey,
	})
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := orch.Initialize(ctx, "u1", second); err != nil {
		t.Fatalf("retry after abort: %v", err)
	}
}

func TestFinalize_ConvertsReservationToUsage(t *testing.T) {
	t.Parallel()

	orch, _, meta := newTestOrchestrator(0)
	ctx := context.Background()

	size := int64(7 * 1024 * 1024) // 2 parts
	resp, err := orch.Initialize(ctx, "u1", initRequest(size))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err = orch.Finalize(ctx, "u1", &datatypes.CompleteUploadRequest{
		SessionID: resp.SessionID,
		ObjectKey: resp.ObjectKey,
		Parts: []datatypes.PartResult{
			{PartNumber: 1, ETag: "e1"},
			{PartNumber: 2, ETag: "e2"},
		},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	md, err := meta.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get metadata: %v", err)
	}
	usage, _ := md.GetInt64(keyUsageBytes)
	if usage != size {
		t.Errorf("usage = %d, want %d", usage, size)
	}
	if reserved := reservedTotal(md); reserved != 0 {
		t.Errorf("reserved = %d after finalize, want 0", reserved)
	}
}

// TestFinalize_RejectsBadPartSets covers gaps, duplicates, short sets, and
// out-of-range part numbers. The session must stay open so the client can
// retry with the corrected set.
func TestFinalize_RejectsBadPartSets(t *testing.T) {
	t.Parallel()

	orch, store, _ := newTestOrchestrator(0)
	ctx := context.Background()

	resp, err := orch.Initialize(ctx, "u1", initRequest(12*1024*1024)) // 3 parts
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	cases := []struct {
		name  string
		parts []datatypes.PartResult
	}{
		{"missing part", []datatypes.PartResult{
			{PartNumber: 1, ETag: "e"}, {PartNumber: 3, ETag: "e"}}},
		{"duplicate part", []datatypes.PartResult{
			{PartNumber: 1, ETag: "e"}, {PartNumber: 2, ETag: "e"}, {PartNumber: 2, ETag: "e"}}},
		{"out of range", []datatypes.PartResult{
			{PartNumber: 1, ETag: "e"}, {PartNumber: 2, ETag: "e"}, {PartNumber: 4, ETag: "e"}}},
		{"too few", []datatypes.PartResult{
			{PartNumber: 1, ETag: "e"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := orch.Finalize(ctx, "u1", &datatypes.CompleteUploadRequest{
				SessionID: resp.SessionID,
				ObjectKey: resp.ObjectKey,
				Parts:     tc.parts,
			})
			if !errors.Is(err, datatypes.ErrIncompleteUpload) {
				t.Errorf("error = %v, want ErrIncompleteUpload", err)
			}
		})
	}

	if n := store.SessionCount(); n != 1 {
		t.Errorf("open sessions = %d after rejected finalizes, want 1", n)
	}
}

func TestFinalize_RejectsForeignObjectKey(t *testing.T) {
	t.Parallel()
	orch, _, _ := newTestOrchestrator(0)

	_, err := orch.Finalize(context.Background(), "u1", &datatypes.CompleteUploadRequest{
		SessionID: "s",
		ObjectKey: "u2/secret.pdf",
		Parts:     []datatypes.PartResult{{PartNumber: 1, ETag: "e"}},
	})
	if !errors.Is(err, datatypes.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}
