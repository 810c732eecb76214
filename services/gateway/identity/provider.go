// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package identity integrates the external identity/session provider:
// bearer-token validation and the per-user metadata blob the gateway uses
// for quota and rate-limit bookkeeping.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Prgm-code/index0/pkg/extensions"
)

// sessionClaims are the provider's session token claims.
type sessionClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HMAC-signed session tokens issued by the identity
// provider and maps their claims onto extensions.AuthInfo.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider builds a provider. issuer is optional; when set, tokens
// from any other issuer are rejected.
func NewJWTProvider(secret []byte, issuer string) *JWTProvider {
	return &JWTProvider{secret: secret, issuer: issuer}
}

// Validate checks the token signature and expiry and returns the caller's
// identity. Any failure maps to extensions.ErrUnauthorized; the underlying
// cause is wrapped for logs, never shown to clients.
func (p *JWTProvider) Validate(_ context.Context, tokenString string) (*extensions.AuthInfo, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extensions.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", extensions.ErrUnauthorized)
	}

	return &extensions.AuthInfo{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// IssueToken mints a session token. Exists for local deployments and tests;
// production tokens come from the provider itself.
func (p *JWTProvider) IssueToken(userID, email string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Compile-time interface check.
var _ extensions.AuthProvider = (*JWTProvider)(nil)
