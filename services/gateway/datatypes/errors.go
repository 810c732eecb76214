// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the gateway service.
//
// This file defines the gateway error taxonomy. Storage and identity
// provider failures are caught at the orchestration boundary and converted
// to one of these kinds with a human-readable message; no retries are
// performed anywhere in the gateway - a failed part upload, a failed
// finalize, or a dropped stream connection all surface as a single
// terminal failure to the caller.
package datatypes

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthenticated means no caller identity is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized means the caller identity does not own the resource.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrQuotaExceeded means the projected post-upload storage usage would
	// exceed the caller's configured byte quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrIncompleteUpload means finalize was given a part set that does not
	// cover exactly 1..partCount with no duplicates.
	ErrIncompleteUpload = errors.New("incomplete upload")

	// ErrTransport covers network failures and non-2xx upstream responses.
	ErrTransport = errors.New("transport error")

	// ErrUpstreamParse marks a malformed event payload from the streaming
	// upstream. Recovered locally by dropping the line; never terminal.
	ErrUpstreamParse = errors.New("upstream parse error")
)

// RateLimitError is returned when a caller exhausts their request window.
// It carries the window's original expiry for user messaging.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, window resets at %s", e.ResetAt.Format(time.RFC3339))
}

// IsRateLimit reports whether err is a RateLimitError and returns it.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
