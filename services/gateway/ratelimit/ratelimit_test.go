// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

// newTestLimiter returns a limiter with a controllable clock.
func newTestLimiter(max int, period time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(extensions.NewInMemoryMetadataStore(), max, period, nil)
	l.now = func() time.Time { return now }
	return l, &now
}

// TestLimiter_SixthRequestDenied: with MAX_REQUESTS=5 the 6th request in a
// fresh window is denied, and the denial carries the window's original
// expiry rather than a recomputed one.
func TestLimiter_SixthRequestDenied(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(5, 3*time.Hour)
	ctx := context.Background()
	windowStart := *now

	for i := 1; i <= 5; i++ {
		// Requests arrive spread over the window; the expiry must not move.
		*now = windowStart.Add(time.Duration(i) * time.Minute)
		if err := l.Check(ctx, "u1"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	*now = windowStart.Add(10 * time.Minute)
	err := l.Check(ctx, "u1")
	rle, ok := datatypes.IsRateLimit(err)
	if !ok {
		t.Fatalf("6th request error = %v, want RateLimitError", err)
	}
	if want := windowStart.Add(time.Minute).Add(3 * time.Hour); !rle.ResetAt.Equal(want) {
		t.Errorf("resetAt = %v, want original window expiry %v", rle.ResetAt, want)
	}
}

// TestLimiter_ExceededStopsIncrementing: after the triggering denial the
// stored count freezes; later requests deny without incrementing.
func TestLimiter_ExceededStopsIncrementing(t *testing.T) {
	t.Parallel()

	meta := extensions.NewInMemoryMetadataStore()
	l := NewLimiter(meta, 2, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_ = l.Check(ctx, "u1")
	}

	md, _ := meta.Get(ctx, "u1")
	count, _ := md.GetInt64("rl_count")
	if count != 3 { // 2 allowed + the triggering request
		t.Errorf("stored count = %d, want frozen at max+1", count)
	}
	exceeded, _ := md.GetBool("rl_exceeded")
	if !exceeded {
		t.Error("exceeded flag not set")
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(1, time.Hour)
	ctx := context.Background()

	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Check(ctx, "u1"); err == nil {
		t.Fatal("second request should be denied")
	}

	*now = now.Add(time.Hour) // window lapsed exactly
	if err := l.Check(ctx, "u1"); err != nil {
		t.Errorf("request after window expiry: %v", err)
	}
}

func TestLimiter_IdentitiesIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(1, time.Hour)
	ctx := context.Background()

	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if err := l.Check(ctx, "u2"); err != nil {
		t.Errorf("u2 should have its own window: %v", err)
	}
}

// TestLimiter_SurvivesJSONRoundTrip: window state read back from a JSON
// decode (float64 count, millisecond timestamps) must still work.
func TestLimiter_SurvivesJSONRoundTrip(t *testing.T) {
	t.Parallel()

	meta := extensions.NewInMemoryMetadataStore()
	ctx := context.Background()

	// State as a JSON decoder would deliver it.
	_, err := meta.Update(ctx, "u1", func(md extensions.Metadata) extensions.Metadata {
		return md.Set("rl_count", float64(5)).
			Set("rl_reset_at", float64(time.Now().Add(time.Hour).UnixMilli())).
			Set("rl_exceeded", false)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	l := NewLimiter(meta, 5, time.Hour, nil)
	if _, ok := datatypes.IsRateLimit(l.Check(ctx, "u1")); !ok {
		t.Error("request over decoded count should be denied")
	}
}
