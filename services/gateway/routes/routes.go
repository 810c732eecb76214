// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Prgm-code/index0/pkg/extensions"
	"github.com/Prgm-code/index0/services/gateway/handlers"
	"github.com/Prgm-code/index0/services/gateway/middleware"
)

// Handlers bundles the route targets so SetupRoutes stays a wiring-only
// function.
type Handlers struct {
	Uploads *handlers.UploadHandler
	Files   *handlers.FilesHandler
	Chat    *handlers.ChatHandler
}

// SetupRoutes registers the gateway's HTTP surface.
//
// /health and /metrics are unauthenticated; everything under /v1 goes
// through the bearer-auth middleware.
func SetupRoutes(router *gin.Engine, h Handlers, auth extensions.AuthProvider) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(auth))
	{
		uploads := v1.Group("/uploads")
		{
			uploads.POST("", h.Uploads.Initialize)
			uploads.POST("/complete", h.Uploads.Complete)
			uploads.POST("/abort", h.Uploads.Abort)
		}

		files := v1.Group("/files")
		{
			files.GET("", h.Files.List)
			files.DELETE("", h.Files.Delete)
			files.POST("/download", h.Files.Download)
		}

		folders := v1.Group("/folders")
		{
			folders.POST("", h.Files.CreateFolder)
			folders.DELETE("", h.Files.DeleteFolder)
		}

		v1.POST("/search", h.Chat.HandleSearch)
		v1.POST("/chat", h.Chat.HandleChatStream)
	}
}
