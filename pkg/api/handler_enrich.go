package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/bussola-ai/bussola/pkg/events"
)

// enrichmentTimeout caps one background enrichment run. The three layer
// budgets sum to 18s; the rest covers persistence and event publishing.
const enrichmentTimeout = 30 * time.Second

// EnrichRequest is the body of POST /api/form/enrich.
type EnrichRequest struct {
	URL   string `json:"url"`
	Email string `json:"email"`
}

// enrichHandler handles POST /api/form/enrich. It resolves the session
// id synchronously and runs the enrichment layers in the background;
// clients follow progress on the stream endpoint.
func (s *Server) enrichHandler(c *echo.Context) error {
	var req EnrichRequest
	if err := c.Bind(&req); err != nil {
		return respondFail(c, http.StatusBadRequest, "bad_request", err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return respondFail(c, http.StatusBadRequest, "validation_error", "url is required")
	}

	session, cached, err := s.orchestrator.Prepare(c.Request().Context(), req.URL, req.Email)
	if err != nil {
		return respondFail(c, http.StatusBadRequest, "validation_error", "url is not a valid website address")
	}

	// Detached from the request context: closing the form tab must not
	// abort an enrichment another subscriber may be following.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enrichmentTimeout)
		defer cancel()
		if err := s.orchestrator.Enrich(ctx, session); err != nil {
			slog.Warn("Enrichment run aborted", "session_id", session.ID, "error", err)
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer pubCancel()
			channel := events.EnrichmentChannel(session.ID)
			if pubErr := s.publisher.Error(pubCtx, channel, "enrichment", "timeout", "enrichment did not finish in time"); pubErr != nil {
				slog.Warn("Failed to publish enrichment error event",
					"session_id", session.ID, "error", pubErr)
			}
		}
	}()

	return respond(c, http.StatusAccepted, &EnrichResponse{
		SessionID: session.ID,
		StreamURL: "/api/form/stream/" + session.ID,
		Cached:    cached,
	})
}

// getSessionHandler handles GET /api/form/session/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return respondFail(c, http.StatusBadRequest, "validation_error", "session id is required")
	}

	view, err := s.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, view)
}
