// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the gateway service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting AuthInfo plus the raw token in the Gin context:
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo + token in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo / GetAuthToken)
//
// The raw token is kept because chat and search handlers forward it to
// the upstream RAG backend on the caller's behalf.
//
// With NopAuthProvider (the local default) every request authenticates as
// "local-user" with admin privileges, so the gateway runs without any
// identity infrastructure.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Prgm-code/index0/pkg/extensions"
)

// =============================================================================
// Context Keys
// =============================================================================

const (
	// authInfoKey is the context key for the validated AuthInfo.
	authInfoKey = "index0_auth_info"

	// authTokenKey is the context key for the raw bearer token.
	authTokenKey = "index0_auth_token"
)

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the authenticated user info, or nil when the request
// was not authenticated.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// GetAuthToken returns the raw bearer token the caller presented, for
// forwarding to upstream services. Empty when none was sent.
func GetAuthToken(c *gin.Context) string {
	if v, exists := c.Get(authTokenKey); exists {
		if token, ok := v.(string); ok {
			return token
		}
	}
	return ""
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware authenticates requests with the given provider.
//
// # Description
//
// A missing or malformed Authorization header yields an empty token; the
// provider decides whether that is acceptable (NopAuthProvider allows it,
// the JWT provider rejects it). Validation failures abort the request with
// 401 and a generic body; provider internals never reach the client.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Set(authTokenKey, token)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken pulls the token out of the Authorization header.
// Returns "" when the header is absent or not a Bearer scheme.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
