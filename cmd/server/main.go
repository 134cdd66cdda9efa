package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/analysis"
	"github.com/maukemana/lumalens/internal/batch"
	"github.com/maukemana/lumalens/internal/bridge"
	"github.com/maukemana/lumalens/internal/config"
	"github.com/maukemana/lumalens/internal/duplicate"
	"github.com/maukemana/lumalens/internal/httpapi"
	"github.com/maukemana/lumalens/internal/llm"
	"github.com/maukemana/lumalens/internal/logger"
	"github.com/maukemana/lumalens/internal/observability"
	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/photohost"
	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("DATA_DIR"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Init(cfg.ServiceName, cfg.Env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.ServiceName)
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry: %v", err)
			}
		}()
		log.Println("OpenTelemetry initialized")
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	albumStore, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to construct store:", err)
	}
	if err := albumStore.Initialize(); err != nil {
		log.Fatal("Failed to initialize store:", err)
	}
	flatStore := store.NewFlatStore(cfg.DataDir)
	if err := flatStore.Initialize(); err != nil {
		log.Fatal("Failed to initialize flat store:", err)
	}

	var llmPort ports.LLMPort
	switch cfg.LLM.Provider {
	case "openai":
		llmPort = llm.NewOpenAIVision(cfg.LLM.APIKey)
	default:
		llmPort = llm.NewAnthropicVision(cfg.LLM.APIKey)
	}

	photoHost := photohost.New(photohost.Config{
		BaseURL:           cfg.PhotoHost.BaseURL,
		APIKey:            cfg.PhotoHost.APIKey,
		APISecret:         cfg.PhotoHost.APISecret,
		FetchTimeout:      time.Duration(cfg.PhotoHost.FetchTimeout) * time.Second,
		RequestsPerSecond: 5,
	})

	analysisClient := analysis.New(llmPort)

	batchManager := batch.NewManager(batch.Config{
		GlobalRatePerMinute:  cfg.Batch.GlobalRatePerMinute,
		MaxConcurrentBatches: cfg.Batch.MaxConcurrentBatches,
		PerBatchConcurrency:  cfg.Batch.PerBatchConcurrency,
		MaxRetries:           cfg.Batch.MaxRetries,
		RetentionSeconds:     cfg.Batch.BatchRetentionSeconds,
	})

	searchEngine := search.New(albumStore, llmPort, photoHost, search.VerifyConfig{
		Enabled:   cfg.Vision.Enabled,
		BatchSize: cfg.Vision.BatchSize,
		MaxImages: cfg.Vision.MaxImages,
		ModelID:   cfg.Vision.ModelID,
	})

	conversationalBridge := bridge.New(llmPort, searchEngine, cfg.LLM.ChatModelID, "")
	duplicateTools := duplicate.New(flatStore)

	var mirror *photohost.S3OriginalsMirror
	if cfg.Storage.Enabled {
		m, err := photohost.NewS3OriginalsMirror(photohost.S3OriginalsMirrorConfig{
			AccountID:       cfg.Storage.AccountID,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			BucketName:      cfg.Storage.BucketName,
			PublicURLBase:   cfg.Storage.PublicURLBase,
		})
		if err != nil {
			log.Printf("Warning: originals mirror disabled: %v", err)
		} else {
			mirror = m
			log.Println("originals mirror enabled")
		}
	}

	deps := &httpapi.Dependencies{
		Config:    cfg,
		Store:     albumStore,
		Flat:      flatStore,
		PhotoHost: photoHost,
		LLM:       llmPort,
		Analysis:  analysisClient,
		Batch:     batchManager,
		Search:    searchEngine,
		Bridge:    conversationalBridge,
		Duplicate: duplicateTools,
		Mirror:    mirror,
	}
	r := httpapi.Setup(deps)

	srv := &http.Server{
		Addr:    ":" + cfg.ServicePort,
		Handler: r,
	}

	go func() {
		log.Printf("lumalens starting on port %s (env=%s)", cfg.ServicePort, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	batchManager.CancelAllBatches()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("server exited")
}
