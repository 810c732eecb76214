// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"
)

// TestPartCountFor verifies partCount = ceil(totalSize / ChunkSize).
func TestPartCountFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		size int64
		want int
	}{
		{"zero", 0, 0},
		{"negative", -1, 0},
		{"one byte", 1, 1},
		{"exactly one chunk", ChunkSize, 1},
		{"one chunk plus one byte", ChunkSize + 1, 2},
		{"3 MiB", 3 * 1024 * 1024, 1},
		{"12 MiB", 12 * 1024 * 1024, 3},
		{"exactly ten chunks", 10 * ChunkSize, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PartCountFor(tc.size); got != tc.want {
				t.Errorf("PartCountFor(%d) = %d, want %d", tc.size, got, tc.want)
			}
		})
	}
}

// TestPartRange_CoversFileExactly verifies that the union of all part ranges
// covers [0, size) with no overlap and no gap.
func TestPartRange_CoversFileExactly(t *testing.T) {
	t.Parallel()

	sizes := []int64{1, ChunkSize - 1, ChunkSize, ChunkSize + 1,
		3 * 1024 * 1024, 12 * 1024 * 1024, 10*ChunkSize + 137}

	for _, size := range sizes {
		parts := PartCountFor(size)
		var cursor int64
		for p := 1; p <= parts; p++ {
			start, end := PartRange(p, size)
			if start != cursor {
				t.Fatalf("size %d part %d: start %d, want %d (gap or overlap)", size, p, start, cursor)
			}
			if end <= start {
				t.Fatalf("size %d part %d: empty range [%d,%d)", size, p, start, end)
			}
			if p < parts && end-start != ChunkSize {
				t.Fatalf("size %d part %d: interior part has size %d, want %d", size, p, end-start, ChunkSize)
			}
			cursor = end
		}
		if cursor != size {
			t.Fatalf("size %d: ranges cover [0,%d), want [0,%d)", size, cursor, size)
		}
	}
}

func TestInitializeUploadRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := InitializeUploadRequest{
		ObjectPath: "reports/q1.pdf",
		PartCount:  3,
		TotalSize:  12 * 1024 * 1024,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	missing := InitializeUploadRequest{PartCount: 1, TotalSize: 1}
	if err := missing.Validate(); err == nil {
		t.Error("request without object_path should fail validation")
	}

	tooManyParts := InitializeUploadRequest{
		ObjectPath: "big.bin",
		PartCount:  MaxUploadParts + 1,
		TotalSize:  1,
	}
	if err := tooManyParts.Validate(); err == nil {
		t.Error("request above the part limit should fail validation")
	}
}

func TestCompleteUploadRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := CompleteUploadRequest{
		SessionID: "sess-1",
		ObjectKey: "u1/reports/q1.pdf",
		Parts:     []PartResult{{PartNumber: 1, ETag: "abc"}},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	noETag := CompleteUploadRequest{
		SessionID: "sess-1",
		ObjectKey: "u1/x",
		Parts:     []PartResult{{PartNumber: 1}},
	}
	if err := noETag.Validate(); err == nil {
		t.Error("part without etag should fail validation")
	}
}
