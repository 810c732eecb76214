// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles the Index0 document gateway service.
//
// # Description
//
// The gateway fronts three backends:
//
//	Client ──► gateway ──► S3-compatible object store   (uploads, files)
//	                 ├──► RAG backend                   (chat SSE, search)
//	                 └──► identity metadata API          (quota, rate limits)
//
// It never proxies file bytes: uploads go directly from the client to the
// object store through presigned part URLs, and downloads through presigned
// GET URLs. The gateway's own traffic is control-plane JSON plus the chat
// SSE relay.
//
// # Usage
//
//	cfg := gateway.Config{Port: 8787, S3Bucket: "index0-docs"}
//	svc, err := gateway.New(context.Background(), cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/handlers"
	"github.com/Prgm-code/index0/services/gateway/identity"
	"github.com/Prgm-code/index0/services/gateway/ratelimit"
	"github.com/Prgm-code/index0/services/gateway/routes"
	"github.com/Prgm-code/index0/services/gateway/storage"
	"github.com/Prgm-code/index0/services/gateway/stream"
	"github.com/Prgm-code/index0/services/gateway/upload"
)

// =============================================================================
// Service Interface
// =============================================================================

// Service is the gateway's public interface.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the gateway's configuration.
//
// Zero values fall back to local-development defaults in New: an in-memory
// object store, in-memory user metadata, and anonymous authentication. A
// production deployment sets the S3, JWT, and metadata fields.
type Config struct {
	// Port is the HTTP server port.
	// Default: 8787
	Port int

	// S3Region is the bucket's region.
	// Default: "us-east-1"
	S3Region string

	// S3Bucket is the bucket all user namespaces live in. When empty the
	// gateway runs against an in-memory object store (development only).
	S3Bucket string

	// S3Endpoint overrides the S3 endpoint for MinIO or another
	// S3-compatible store.
	// Example: "http://minio:9000"
	S3Endpoint string

	// S3AccessKey and S3SecretKey are static credentials for the bucket.
	S3AccessKey string
	S3SecretKey string

	// ChatEndpoint is the RAG backend's streaming chat URL.
	// Example: "http://rag-backend:7860/api/chat"
	ChatEndpoint string

	// SearchEndpoint is the RAG backend's search URL.
	// Example: "http://rag-backend:7860/api/search"
	SearchEndpoint string

	// JWTSecret signs and verifies session tokens. When empty the gateway
	// accepts every request as "local-user".
	JWTSecret string

	// JWTIssuer is the expected token issuer claim. Optional.
	JWTIssuer string

	// MetadataURL is the identity provider's user-metadata API base URL.
	// When empty, metadata lives in process memory.
	// Example: "http://identity:9100"
	MetadataURL string

	// MetadataAPIKey authenticates the gateway to the metadata API.
	MetadataAPIKey string

	// DefaultQuotaBytes is the storage quota applied to users whose
	// metadata carries none.
	// Default: 1 GiB
	DefaultQuotaBytes int64

	// RateLimitMax is the chat request budget per window.
	// Default: 5
	RateLimitMax int

	// RateLimitPeriod is the fixed rate-limit window.
	// Default: 3 hours
	RateLimitPeriod time.Duration

	// OTelEndpoint is the OpenTelemetry collector endpoint. When empty,
	// tracing is disabled.
	// Example: "otel-collector:4317"
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	store         storage.ObjectStore
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a gateway Service from the given configuration.
//
// # Description
//
// New initializes all gateway components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when a collector is configured)
//  3. Connects the object store (S3 or in-memory)
//  4. Builds the identity pieces (JWT validation, metadata store)
//  5. Wires the upload orchestrator, stream relay, and rate limiter
//  6. Sets up HTTP routes
//
// If opts is nil, components are built from Config; explicit opts override
// the Config-derived AuthProvider and MetadataStore.
//
// # Inputs
//
//   - ctx: Used for object store client construction only.
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension overrides. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run gateway
//   - error: Non-nil if initialization fails
func New(ctx context.Context, cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initObjectStore(ctx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	s.opts = s.buildExtensions()
	if opts != nil {
		if opts.AuthProvider != nil {
			s.opts.AuthProvider = opts.AuthProvider
		}
		if opts.MetadataStore != nil {
			s.opts.MetadataStore = opts.MetadataStore
		}
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting gateway server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	if cfg.DefaultQuotaBytes == 0 {
		cfg.DefaultQuotaBytes = 1 << 30
	}
	if cfg.RateLimitMax == 0 {
		cfg.RateLimitMax = ratelimit.DefaultMaxRequests
	}
	if cfg.RateLimitPeriod == 0 {
		cfg.RateLimitPeriod = ratelimit.DefaultPeriod
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Returns a no-op cleanup when no collector endpoint is configured, so
// local runs need no OTel infrastructure.
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == "" {
		slog.Info("OTel endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	}

	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("index0-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initObjectStore connects to S3 when a bucket is configured, otherwise
// falls back to the in-memory store for local development.
func (s *service) initObjectStore(ctx context.Context) error {
	if s.config.S3Bucket == "" {
		slog.Warn("S3 bucket not configured, using in-memory object store")
		s.store = storage.NewMemoryStore()
		return nil
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:    s.config.S3Region,
		Bucket:    s.config.S3Bucket,
		Endpoint:  s.config.S3Endpoint,
		AccessKey: s.config.S3AccessKey,
		SecretKey: s.config.S3SecretKey,
	})
	if err != nil {
		return err
	}

	s.store = store
	slog.Info("Object store initialized",
		"bucket", s.config.S3Bucket,
		"endpoint", s.config.S3Endpoint)
	return nil
}

// buildExtensions derives the auth provider and metadata store from Config.
func (s *service) buildExtensions() extensions.ServiceOptions {
	opts := extensions.DefaultOptions()

	if s.config.JWTSecret != "" {
		opts.AuthProvider = identity.NewJWTProvider([]byte(s.config.JWTSecret), s.config.JWTIssuer)
		slog.Info("JWT authentication enabled", "issuer", s.config.JWTIssuer)
	} else {
		slog.Warn("JWT secret not configured, accepting anonymous requests")
	}

	if s.config.MetadataURL != "" {
		opts.MetadataStore = identity.NewHTTPMetadataStore(
			s.config.MetadataURL, s.config.MetadataAPIKey, nil, slog.Default())
		slog.Info("Identity metadata store enabled", "url", s.config.MetadataURL)
	} else {
		slog.Warn("Metadata URL not configured, using in-memory metadata store")
	}

	return opts
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	logger := slog.Default()

	orch := upload.NewOrchestrator(s.store, s.opts.MetadataStore, logger, s.config.DefaultQuotaBytes)
	relay := stream.NewClient(s.config.ChatEndpoint, s.config.SearchEndpoint, nil, logger)
	limiter := ratelimit.NewLimiter(s.opts.MetadataStore, s.config.RateLimitMax, s.config.RateLimitPeriod, logger)

	h := routes.Handlers{
		Uploads: handlers.NewUploadHandler(orch, logger),
		Files:   handlers.NewFilesHandler(s.store, logger),
		Chat:    handlers.NewChatHandler(relay, limiter, logger),
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("index0-gateway"))

	routes.SetupRoutes(s.router, h, s.opts.AuthProvider)
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
