// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the integration points between the Index0
// gateway and external identity infrastructure.
//
// The gateway core is deliberately thin: authentication and per-user state
// are delegated to an identity provider, and this package holds the
// interfaces that delegation goes through.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware ──► AuthProvider.Validate ──► AuthInfo in request context
//	   │
//	   ▼
//	Handlers ──► MetadataStore ──► quota / usage / rate-limit state
//
// # Local Behavior
//
// With no configuration, NopAuthProvider authenticates every request as
// "local-user" and InMemoryMetadataStore holds state in process. This lets
// the gateway run standalone against a MinIO bucket with zero external
// services beyond the object store and RAG backend.
//
// # Production Behavior
//
// Production deployments inject a JWT-validating AuthProvider and a
// MetadataStore backed by the identity provider's user-metadata API
// (see the identity package).
package extensions

// ServiceOptions carries the injectable implementations for a gateway
// instance. Zero-value fields are replaced with no-op defaults by
// DefaultOptions or when the gateway checks for nil.
//
// Example:
//
//	// Local: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Production: inject implementations
//	opts := extensions.ServiceOptions{
//	    AuthProvider:  identity.NewJWTAuthProvider(secret),
//	    MetadataStore: identity.NewMetadataClient(baseURL, adminToken),
//	}
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns valid local user)
	AuthProvider AuthProvider

	// MetadataStore persists per-user metadata blobs.
	// Default: InMemoryMetadataStore (process-local, lost on restart)
	MetadataStore MetadataStore
}

// DefaultOptions returns ServiceOptions with local no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		MetadataStore: NewInMemoryMetadataStore(),
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithMetadataStore returns a copy of opts with the given MetadataStore.
func (opts ServiceOptions) WithMetadataStore(store MetadataStore) ServiceOptions {
	opts.MetadataStore = store
	return opts
}
