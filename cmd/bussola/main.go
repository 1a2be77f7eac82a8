// Bússola server — serves the enrichment and submission HTTP API, runs
// the analysis worker pool, and streams pipeline progress over SSE.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bussola-ai/bussola/pkg/analysis"
	"github.com/bussola-ai/bussola/pkg/api"
	"github.com/bussola-ai/bussola/pkg/breaker"
	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/cleanup"
	"github.com/bussola-ai/bussola/pkg/config"
	"github.com/bussola-ai/bussola/pkg/database"
	"github.com/bussola-ai/bussola/pkg/enrichment"
	"github.com/bussola-ai/bussola/pkg/enrichment/sources"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/llm"
	"github.com/bussola-ai/bussola/pkg/queue"
	"github.com/bussola-ai/bussola/pkg/services"
	"github.com/bussola-ai/bussola/pkg/session"
)

func main() {
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting Bússola", "environment", cfg.Environment, "port", cfg.Port)

	// 2. Database
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Stores and caches
	sessionStore := database.NewSessionStore(dbClient.DBX())
	stageStore := database.NewStageCacheStore(dbClient.DBX())
	submissionStore := database.NewSubmissionStore(dbClient.DBX())
	editStore := database.NewEditStore(dbClient.DBX())
	eventLog := database.NewEventLog(dbClient.DBX())

	sessionCache := cache.NewEnrichmentCache(sessionStore)
	stageCache := cache.NewStageCache(stageStore)

	// 4. Event streaming: publisher writes, listener feeds the broker
	publisher := events.NewPublisher(dbClient.DB())
	broker := events.NewBroker(eventLog)
	listener := events.NewListener(cfg.Database.ConnString(), broker)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notification listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)
	broker.SetListener(listener)
	slog.Info("Streaming infrastructure initialized")

	// 5. LLM client
	provider, err := llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	llmClient := llm.NewClient(provider, llm.DefaultPriceTable(), cfg.LLMRatePerSec)

	// 6. Enrichment sources. A missing API key leaves that source out.
	breakers := breaker.NewRegistry()
	registry := sources.NewRegistry()
	registry.Register(sources.NewMetadataSource(breakers, nil))
	registry.Register(sources.NewGeoIPSource(breakers, nil, ""))
	if cfg.RegistryAPIKey != "" {
		registry.Register(sources.NewRegistrySource(breakers, nil, "", cfg.RegistryAPIKey))
	} else {
		slog.Warn("REGISTRY_API_KEY not set, corporate registry source disabled")
	}
	if cfg.PlacesAPIKey != "" {
		registry.Register(sources.NewPlacesSource(breakers, nil, "", cfg.PlacesAPIKey))
	} else {
		slog.Warn("PLACES_API_KEY not set, places source disabled")
	}
	if cfg.PeopleAPIKey != "" {
		registry.Register(sources.NewPeopleAPISource(breakers, nil, "", cfg.PeopleAPIKey))
	} else {
		slog.Warn("PEOPLE_API_KEY not set, people source disabled")
	}
	if cfg.LinkedInAPIKey != "" {
		registry.Register(sources.NewLinkedInSource(breakers, nil, "", cfg.LinkedInAPIKey))
	} else {
		slog.Warn("LINKEDIN_API_KEY not set, LinkedIn source disabled")
	}
	registry.Register(sources.NewLLMSource(breakers, llmClient, cfg.LLMModelCheap))

	// 7. Enrichment engine and services
	loader := session.NewLoader(sessionCache, editStore)
	orchestrator := enrichment.NewOrchestrator(
		registry, sessionCache, publisher, loader.CachedPenalties(5*time.Minute), cfg.SessionTTL)

	submissionService := services.NewSubmissionService(submissionStore, cfg.DailySubmissionQuota)
	sessionService := services.NewSessionService(sessionCache)
	slog.Info("Services initialized", "sources", len(registry.All()))

	// 8. Analysis pipeline and worker pool
	pipeline := analysis.NewPipeline(llmClient, stageCache, publisher, analysis.ModelSet{
		Cheap:   cfg.LLMModelCheap,
		Mid:     cfg.LLMModelMid,
		Premium: cfg.LLMModelPremium,
	})
	pool := queue.NewPool(queue.Config{
		Workers:          cfg.WorkerCount,
		PollEvery:        cfg.WorkerPollEvery,
		OrphanStaleAfter: cfg.OrphanStaleAfter,
	}, submissionStore, loader, pipeline, publisher)
	pool.Start(ctx)

	// 9. Retention sweep
	sweeper := cleanup.NewService(sessionCache, stageCache, eventLog, cfg.CleanupSweepEvery, cfg.EventRetention)
	sweeper.Start(ctx)

	// 10. HTTP server
	httpServer := api.NewServer(cfg, dbClient, submissionService, sessionService,
		orchestrator, broker, publisher, breakers, pool)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Bússola started successfully", "workers", cfg.WorkerCount)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: stop intake first, then drain the workers
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(30 * time.Second):
		slog.Warn("Worker shutdown timeout exceeded, in-flight submissions will be orphan-recovered")
	}

	sweeper.Stop()
	slog.Info("Shutdown complete")
}
