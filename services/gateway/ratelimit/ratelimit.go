// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements a fixed-window request limiter whose state
// lives in the identity provider's per-user metadata, not in this process.
//
// Window state is three metadata fields: a request count, the window's
// expiry, and an exceeded flag. The triggering request increments the count
// and is denied; requests after that deny without incrementing, so the
// stored count never grows past MaxRequests+1. Every denial carries the
// window's original expiry, never a recomputed one.
//
// Updates run through MetadataStore.Update, which compare-and-swaps on
// backends that support conditional writes. On backends that cannot, the
// read-modify-write race reappears: two concurrent requests can both land
// under the ceiling. That lost-update window is inherent to the storage
// contract, not hidden here.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

var tracer = otel.Tracer("index0/gateway/ratelimit")

// Defaults for the chat endpoint.
const (
	DefaultMaxRequests = 5
	DefaultPeriod      = 3 * time.Hour
)

// Metadata keys for window state. Times are stored as Unix milliseconds so
// the blob survives a JSON round trip without type drift.
const (
	keyCount   = "rl_count"
	keyResetAt = "rl_reset_at"
	keyExceed  = "rl_exceeded"
)

// Limiter gates requests per caller identity.
type Limiter struct {
	meta   extensions.MetadataStore
	max    int64
	period time.Duration
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter builds a limiter. Zero max or period fall back to the defaults.
func NewLimiter(meta extensions.MetadataStore, max int, period time.Duration, logger *slog.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		meta:   meta,
		max:    int64(max),
		period: period,
		logger: logger,
		now:    time.Now,
	}
}

// Check consumes one request slot for the identity.
//
// # Outputs
//
//   - error: nil to allow; *datatypes.RateLimitError carrying the window's
//     original expiry to deny; other errors are metadata-store failures,
//     which allow the request rather than lock users out on backend
//     hiccups.
func (l *Limiter) Check(ctx context.Context, identity string) error {
	ctx, span := tracer.Start(ctx, "ratelimit.Check")
	defer span.End()

	var denyAt time.Time
	var denied bool

	_, err := l.meta.Update(ctx, identity, func(md extensions.Metadata) extensions.Metadata {
		now := l.now()
		resetAt, hasWindow := md.GetTime(keyResetAt)

		// No window yet, or the active window has lapsed: start fresh.
		if !hasWindow || !now.Before(resetAt) {
			denied = false
			return md.Set(keyCount, int64(1)).
				Set(keyResetAt, now.Add(l.period).UnixMilli()).
				Set(keyExceed, false)
		}

		// Once exceeded, deny without touching the count.
		if exceeded, _ := md.GetBool(keyExceed); exceeded {
			denied, denyAt = true, resetAt
			return nil
		}

		count, _ := md.GetInt64(keyCount)
		count++
		if count > l.max {
			denied, denyAt = true, resetAt
			return md.Set(keyCount, count).Set(keyExceed, true)
		}
		denied = false
		return md.Set(keyCount, count)
	})
	if err != nil {
		l.logger.Warn("rate limit state unavailable, allowing request",
			"identity", identity, "error", err)
		return nil
	}

	if denied {
		l.logger.Info("rate limit exceeded",
			"identity", identity, "reset_at", denyAt)
		return &datatypes.RateLimitError{ResetAt: denyAt}
	}
	return nil
}
