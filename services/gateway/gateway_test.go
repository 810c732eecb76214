// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

// newLocalService builds a gateway with all in-memory defaults.
func newLocalService(t *testing.T) Service {
	t.Helper()

	svc, err := New(context.Background(), Config{GinMode: gin.TestMode}, nil)
	require.NoError(t, err)
	return svc
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	svc := newLocalService(t)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines", "Prometheus registry should be exposed")
}

func TestGateway_LocalDefaultsAllowAnonymousUpload(t *testing.T) {
	svc := newLocalService(t)

	body, err := json.Marshal(datatypes.InitializeUploadRequest{
		ObjectPath: "hello.txt",
		PartCount:  1,
		TotalSize:  1024,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp datatypes.InitializeUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local-user/hello.txt", resp.ObjectKey,
		"anonymous requests run as the local user")
	assert.Len(t, resp.PartURLs, 1)
}

func TestGateway_JWTConfigRejectsAnonymous(t *testing.T) {
	svc, err := New(context.Background(), Config{
		GinMode:   gin.TestMode,
		JWTSecret: "test-secret",
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplyConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := applyConfigDefaults(Config{})
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, int64(1<<30), cfg.DefaultQuotaBytes)
	assert.Equal(t, 5, cfg.RateLimitMax)

	cfg = applyConfigDefaults(Config{Port: 9000})
	assert.Equal(t, 9000, cfg.Port, "explicit values survive")
}
