package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/bussola-ai/bussola/pkg/events"
)

// sseHeartbeat keeps idle streams alive through proxies that reap
// quiet connections.
const sseHeartbeat = 15 * time.Second

// enrichStreamHandler handles GET /api/form/stream/:id.
func (s *Server) enrichStreamHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return respondFail(c, http.StatusBadRequest, "validation_error", "session id is required")
	}
	return s.streamChannel(c, events.EnrichmentChannel(sessionID))
}

// submissionStreamHandler handles GET /api/submissions/:id/stream.
func (s *Server) submissionStreamHandler(c *echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return respondFail(c, http.StatusBadRequest, "validation_error", "submission id must be an integer")
	}
	if _, err := s.submissions.Get(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return s.streamChannel(c, events.SubmissionChannel(id))
}

// streamChannel serves one SSE connection over a broker subscription.
// Last-Event-ID resumes from the durable log, so a reconnecting client
// replays what it missed before live events resume.
func (s *Server) streamChannel(c *echo.Context, channel string) error {
	sinceID := lastEventID(c)

	sub, err := s.broker.Subscribe(c.Request().Context(), channel, sinceID)
	if err != nil {
		return respondError(c, err)
	}
	defer s.broker.Unsubscribe(sub)

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	rc := http.NewResponseController(c.Response())
	_ = rc.Flush()

	// Streams outlive any server write deadline; best effort.
	_ = rc.SetWriteDeadline(time.Time{})

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Response(), ": keep-alive\n\n"); err != nil {
				return nil
			}
			_ = rc.Flush()
		case payload, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := writeSSE(c.Response(), payload); err != nil {
				return nil
			}
			_ = rc.Flush()
		}
	}
}

// writeSSE frames one event. The durable log id becomes the SSE id so
// EventSource reconnects resume from the right place.
func writeSSE(w io.Writer, payload []byte) error {
	var probe struct {
		Type string `json:"type"`
		ID   int64  `json:"db_event_id"`
	}
	_ = json.Unmarshal(payload, &probe)

	if probe.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", probe.ID); err != nil {
			return err
		}
	}
	if probe.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", probe.Type); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// lastEventID reads the resume position from the standard SSE header,
// falling back to a query parameter for clients that cannot set it.
func lastEventID(c *echo.Context) int64 {
	v := c.Request().Header.Get("Last-Event-ID")
	if v == "" {
		v = c.QueryParam("last_event_id")
	}
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
