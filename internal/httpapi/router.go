// Package httpapi wires the HTTP surface spec §6 describes onto gin: one
// Dependencies struct holding every already-constructed core component,
// grouped handler files per domain (status, search, chat, analyze, config,
// batch, duplicate admin), and a Setup constructor assembling the same
// middleware chain the teacher's internal/router/router.go used.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/maukemana/lumalens/internal/analysis"
	"github.com/maukemana/lumalens/internal/batch"
	"github.com/maukemana/lumalens/internal/bridge"
	"github.com/maukemana/lumalens/internal/config"
	"github.com/maukemana/lumalens/internal/duplicate"
	"github.com/maukemana/lumalens/internal/middleware"
	"github.com/maukemana/lumalens/internal/photohost"
	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/store"
)

// Dependencies bundles every core component the HTTP layer calls into. It
// is built once at startup in cmd/server and never mutated afterward
// except through Config's own locked Get/Set.
type Dependencies struct {
	Config    *config.Config
	Store     store.Interface
	Flat      *store.FlatStore
	PhotoHost ports.PhotoHostPort
	LLM       ports.LLMPort
	Analysis  *analysis.Client
	Batch     *batch.Manager
	Search    *search.Engine
	Bridge    *bridge.Bridge
	Duplicate *duplicate.Tools

	// Mirror is nil when no S3-compatible originals mirror is configured.
	Mirror *photohost.S3OriginalsMirror
}

// Setup creates and configures the gin router, mirroring the teacher's
// middleware chain: otel span wrapping, observability, security headers,
// rate limiting, then CORS.
func Setup(deps *Dependencies) *gin.Engine {
	router := setupBaseRouter(deps.Config)

	router.GET("/health", healthCheck())
	router.GET("/api", apiDocumentation())

	s := &server{deps: deps}

	api := router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/images", s.getImages)
		api.GET("/data/count", s.getDataCount)
		api.GET("/search", s.search)

		api.POST("/chat", s.chat)
		api.POST("/chat/load-more", s.chatLoadMore)

		api.POST("/analyze", s.analyzeImage)

		api.GET("/config", s.getConfig)
		api.POST("/config", s.setConfig)

		batchGroup := api.Group("/batch")
		{
			batchGroup.POST("/start", s.startBatch)
			batchGroup.GET("/status", s.allBatchStatuses)
			batchGroup.GET("/status/:batchId", s.batchStatus)
			batchGroup.GET("/details/:batchId", s.batchDetails)
			batchGroup.POST("/pause", s.pauseBatch)
			batchGroup.POST("/resume", s.resumeBatch)
			batchGroup.POST("/cancel", s.cancelBatch)
			batchGroup.POST("/retry", s.retryBatch)
		}

		adminGroup := api.Group("/admin/duplicates")
		{
			adminGroup.POST("/detect", s.detectDuplicates)
			adminGroup.POST("/cleanup", s.cleanupDuplicates)
			adminGroup.POST("/validate", s.validateDuplicates)
			adminGroup.POST("/rollback", s.rollbackDuplicates)
			adminGroup.GET("/utility", s.duplicateUtility)
			adminGroup.GET("/backups", s.listBackups)
		}
	}

	return router
}

// server holds Dependencies for every handler method; handlers are grouped
// into per-domain files (status_handlers.go, chat_handlers.go, ...).
type server struct {
	deps *Dependencies
}

func setupBaseRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())

	router.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "Accept", "User-Agent", "Cache-Control", "Pragma",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	return router
}

func healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func apiDocumentation() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name": "lumalens",
			"endpoints": map[string]string{
				"status":       "GET /api/status",
				"images":       "GET /api/images",
				"dataCount":    "GET /api/data/count",
				"search":       "GET /api/search?q=",
				"chat":         "POST /api/chat",
				"chatLoadMore": "POST /api/chat/load-more",
				"analyze":      "POST /api/analyze",
				"config":       "GET/POST /api/config",
				"batchStart":   "POST /api/batch/start",
				"batchStatus":  "GET /api/batch/status",
				"duplicates":   "POST /api/admin/duplicates/{detect|cleanup|validate|rollback}",
			},
		})
	}
}
