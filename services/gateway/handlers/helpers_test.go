// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/datatypes"
	"github.com/Prgm-code/index0/services/gateway/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser injects a validated identity, standing in for the auth middleware.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetAuthInfo(c, &extensions.AuthInfo{UserID: userID})
		c.Next()
	}
}

// doJSON runs one JSON request through the router and returns the recorder.
func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// decodeJSON unmarshals a recorder body into out.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
		"body: %s", rec.Body.String())
}

// parseSSEEvents splits a recorded SSE body into its events. Comment lines
// (keepalives) are counted separately.
func parseSSEEvents(t *testing.T, body string) (events []datatypes.StreamEvent, comments int) {
	t.Helper()

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			comments++
		case strings.HasPrefix(line, "data: "):
			var ev datatypes.StreamEvent
			require.NoError(t, json.Unmarshal([]byte(line[len("data: "):]), &ev),
				"line: %s", line)
			events = append(events, ev)
		}
	}
	require.NoError(t, scanner.Err())
	return events, comments
}

// sseUpstream serves a fixed sequence of raw lines as a streaming response,
// standing in for the RAG backend.
func sseUpstream(t *testing.T, lines []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, line := range lines {
			_, _ = w.Write([]byte(line))
			flusher.Flush()
		}
	}))
}
