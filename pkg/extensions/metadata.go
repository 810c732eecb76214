// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"time"
)

// Metadata is an arbitrary-schema key-value blob attached to a user at the
// identity provider.
//
// The gateway uses it as ad hoc storage for per-user bookkeeping: storage
// quota and usage, upload reservations, rate-limit window state, and the
// virtual folder list. No schema migration or versioning is defined for the
// blob itself - readers must treat missing fields as defaults.
//
// Values round-trip through JSON, so numeric values may come back as float64
// regardless of how they were written. The typed accessors below normalize
// the common numeric encodings.
//
// Example:
//
//	md := extensions.NewMetadata().
//	    Set("quota_bytes", int64(5<<30)).
//	    Set("rl_exceeded", false)
type Metadata map[string]any

// NewMetadata creates an empty Metadata map ready for use.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set stores a value and returns the map for chaining.
// A nil receiver is replaced with a fresh map.
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = NewMetadata()
	}
	m[key] = value
	return m
}

// Get returns the raw value and whether the key exists.
func (m Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// GetString returns the value as a string.
// Returns ("", false) if the key is missing or not a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64 returns the value as an int64.
//
// Accepts int, int64, and float64 (JSON decoding produces float64 for all
// numbers). Returns (0, false) for missing keys or other types.
func (m Metadata) GetInt64(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// GetBool returns the value as a bool.
// Returns (false, false) if the key is missing or not a bool.
func (m Metadata) GetBool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetTime returns the value as a time.Time.
//
// Accepts time.Time, RFC 3339 strings, and Unix milliseconds (int64 or
// float64). Returns (zero, false) otherwise.
func (m Metadata) GetTime(key string) (time.Time, bool) {
	v, ok := m.Get(key)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case int64:
		return time.UnixMilli(t), true
	case float64:
		return time.UnixMilli(int64(t)), true
	default:
		return time.Time{}, false
	}
}

// Has reports whether the key exists.
func (m Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes a key and returns the map for chaining.
func (m Metadata) Delete(key string) Metadata {
	if m != nil {
		delete(m, key)
	}
	return m
}

// Clone returns a shallow copy of the map.
// Cloning a nil map returns an empty, usable map.
func (m Metadata) Clone() Metadata {
	out := NewMetadata()
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Len returns the number of keys. A nil map has length 0.
func (m Metadata) Len() int {
	return len(m)
}
