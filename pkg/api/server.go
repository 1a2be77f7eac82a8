// Package api exposes the HTTP surface: enrichment intake and
// streaming, submission lifecycle, and health.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/bussola-ai/bussola/pkg/breaker"
	"github.com/bussola-ai/bussola/pkg/config"
	"github.com/bussola-ai/bussola/pkg/database"
	"github.com/bussola-ai/bussola/pkg/enrichment"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/queue"
	"github.com/bussola-ai/bussola/pkg/services"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg          *config.Config
	dbClient     *database.Client
	submissions  *services.SubmissionService
	sessions     *services.SessionService
	orchestrator *enrichment.Orchestrator
	broker       *events.Broker
	publisher    *events.Publisher
	breakers     *breaker.Registry
	pool         *queue.Pool

	echo    *echo.Echo
	httpSrv *http.Server
}

// NewServer wires the server and registers all routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	submissions *services.SubmissionService,
	sessions *services.SessionService,
	orchestrator *enrichment.Orchestrator,
	broker *events.Broker,
	publisher *events.Publisher,
	breakers *breaker.Registry,
	pool *queue.Pool,
) *Server {
	s := &Server{
		cfg:          cfg,
		dbClient:     dbClient,
		submissions:  submissions,
		sessions:     sessions,
		orchestrator: orchestrator,
		broker:       broker,
		publisher:    publisher,
		breakers:     breakers,
		pool:         pool,
	}

	e := echo.New()
	e.Use(requestID(), securityHeaders(), corsHeaders(cfg.AllowedOrigins))

	e.GET("/health", s.healthHandler)

	api := e.Group("/api")
	api.POST("/form/enrich", s.enrichHandler)
	api.GET("/form/stream/:id", s.enrichStreamHandler)
	api.GET("/form/session/:id", s.getSessionHandler)

	api.POST("/submit", s.submitHandler)
	api.GET("/submissions", s.listSubmissionsHandler)
	api.GET("/submissions/:id", s.getSubmissionHandler)
	api.GET("/submissions/:id/stream", s.submissionStreamHandler)
	api.PATCH("/submissions/:id/status", s.userStatusHandler)
	api.POST("/submissions/:id/reprocess", s.reprocessHandler)

	s.echo = e
	return s
}

// Start blocks serving HTTP on addr until Shutdown or a listener error.
// Write timeouts stay unset so SSE streams can outlive slow pipelines.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the server, letting in-flight requests drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
