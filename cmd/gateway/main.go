// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command gateway starts the Index0 document gateway HTTP server.
//
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - GATEWAY_PORT: HTTP server port (default: 8787)
//   - S3_REGION: Bucket region (default: us-east-1)
//   - S3_BUCKET: Object store bucket (empty: in-memory store, dev only)
//   - S3_ENDPOINT: S3-compatible endpoint override, e.g. MinIO (optional)
//   - S3_ACCESS_KEY / S3_SECRET_KEY: Static bucket credentials
//   - CHAT_ENDPOINT: RAG backend streaming chat URL
//   - SEARCH_ENDPOINT: RAG backend search URL
//   - JWT_SECRET: Session token signing secret (empty: anonymous access)
//   - JWT_ISSUER: Expected token issuer claim (optional)
//   - METADATA_URL: Identity metadata API base URL (empty: in-memory)
//   - METADATA_API_KEY: Gateway credential for the metadata API
//   - DEFAULT_QUOTA_BYTES: Per-user storage quota (default: 1 GiB)
//   - RATE_LIMIT_MAX: Chat requests per window (default: 5)
//   - RATE_LIMIT_PERIOD: Rate-limit window, Go duration (default: 3h)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTel collector (empty: tracing disabled)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_DIR: enables JSON file logging when set
//
// # Usage
//
//	go build -o gateway ./cmd/gateway
//	./gateway
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Prgm-code/index0/pkg/logging"
	"github.com/Prgm-code/index0/services/gateway"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(getEnvString("LOG_LEVEL", "info")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "gateway",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := gateway.Config{
		Port:              getEnvInt("GATEWAY_PORT", 8787),
		S3Region:          getEnvString("S3_REGION", "us-east-1"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		ChatEndpoint:      os.Getenv("CHAT_ENDPOINT"),
		SearchEndpoint:    os.Getenv("SEARCH_ENDPOINT"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTIssuer:         os.Getenv("JWT_ISSUER"),
		MetadataURL:       os.Getenv("METADATA_URL"),
		MetadataAPIKey:    os.Getenv("METADATA_API_KEY"),
		DefaultQuotaBytes: getEnvInt64("DEFAULT_QUOTA_BYTES", 1<<30),
		RateLimitMax:      getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitPeriod:   getEnvDuration("RATE_LIMIT_PERIOD", 3*time.Hour),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:           os.Getenv("GIN_MODE"),
	}

	slog.Info("Starting gateway",
		"port", cfg.Port,
		"bucket", cfg.S3Bucket,
		"chat_endpoint", cfg.ChatEndpoint,
	)

	svc, err := gateway.New(context.Background(), cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns the environment variable as int64 or a default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
