// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noFlushWriter is a ResponseWriter without http.Flusher.
type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := NewSSEWriter(noFlushWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestSSEWriter_EventFraming(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteStatus("Searching documents..."))
	require.NoError(t, writer.WriteDelta("partial answer"))
	require.NoError(t, writer.WriteDone())

	body := rec.Body.String()
	assert.Contains(t, body, "event: status\n")
	assert.Contains(t, body, "event: delta\n")
	assert.Contains(t, body, "event: done\n")
	assert.Equal(t, 3, strings.Count(body, "\n\n"), "each event ends with a blank line")
}

func TestSSEWriter_KeepAliveOutsideChain(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteDelta("a"))
	require.NoError(t, writer.WriteKeepAlive())
	require.NoError(t, writer.WriteDelta("ab"))

	events, comments := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, 1, comments)
	assert.Equal(t, events[0].Hash, events[1].PrevHash,
		"keepalive must not break the hash chain")
}

func TestSSEWriter_PopulatesEventMetadata(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteError("could not process the query"))

	events, _ := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Id)
	assert.NotZero(t, events[0].CreatedAt)
	assert.NotEmpty(t, events[0].Hash)
	assert.Equal(t, "could not process the query", events[0].Error)
}
