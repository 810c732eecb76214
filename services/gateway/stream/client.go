// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

var tracer = otel.Tracer("index0/gateway/stream")

// readBufferSize is the chunk size for draining the upstream body.
const readBufferSize = 4096

// Client talks to the RAG/completion backend.
type Client struct {
	chatEndpoint   string
	searchEndpoint string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient wires a backend client.
//
// httpClient may be nil; a client with no overall timeout is used then,
// because chat streams legitimately run for minutes. Per-request deadlines
// come from the caller's context.
func NewClient(chatEndpoint, searchEndpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		chatEndpoint:   chatEndpoint,
		searchEndpoint: searchEndpoint,
		httpClient:     httpClient,
		logger:         logger,
	}
}

// Chat opens a streaming completion request and drives a Reframer over the
// response body, delivering each new full response text through emit.
//
// # Description
//
// Strictly sequential: one reader, one buffer, no parallelism within a
// stream. A non-2xx open or a mid-body read error emits the single
// ErrorFrameText frame and returns the underlying error for logging; the
// caller must still complete its stream normally afterward.
func (c *Client) Chat(ctx context.Context, req *datatypes.ChatRequest, authToken, ownerID string, emit EmitFunc) error {
	ctx, span := tracer.Start(ctx, "stream.Chat")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		emit(ErrorFrameText)
		return fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatEndpoint, bytes.NewReader(body))
	if err != nil {
		emit(ErrorFrameText)
		return fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		emit(ErrorFrameText)
		return fmt.Errorf("%w: open chat stream: %v", datatypes.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		emit(ErrorFrameText)
		return fmt.Errorf("%w: chat stream returned status %d", datatypes.ErrTransport, resp.StatusCode)
	}

	reframer := NewReframer(ownerID, emit)
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			reframer.Feed(buf[:n])
		}
		if reframer.Done() {
			break
		}
		if readErr == io.EOF {
			reframer.Finish()
			break
		}
		if readErr != nil {
			reframer.Finish()
			emit(ErrorFrameText)
			return fmt.Errorf("%w: read chat stream: %v", datatypes.ErrTransport, readErr)
		}
	}

	c.logger.Debug("chat stream drained",
		"duration_ms", time.Since(start).Milliseconds(),
		"final_len", len(reframer.Last()))
	return nil
}

// Search forwards a search request to the backend and returns its response
// verbatim. Folders scope the search; the backend handles ranking.
func (c *Client) Search(ctx context.Context, req *datatypes.SearchRequest, authToken string) (*datatypes.SearchResponse, error) {
	ctx, span := tracer.Start(ctx, "stream.Search")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", datatypes.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("%w: search returned status %d", datatypes.ErrTransport, resp.StatusCode)
	}

	var out datatypes.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", datatypes.ErrUpstreamParse, err)
	}
	return &out, nil
}
