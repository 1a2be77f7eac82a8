package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/bussola-ai/bussola/pkg/models"
	"github.com/bussola-ai/bussola/pkg/services"
)

// submitHandler handles POST /api/submit. The submission is queued and
// picked up by the worker pool; the response returns immediately.
func (s *Server) submitHandler(c *echo.Context) error {
	var req services.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return respondFail(c, http.StatusBadRequest, "bad_request", err.Error())
	}

	sub, err := s.submissions.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, http.StatusAccepted, &SubmitResponse{
		SubmissionID: sub.ID,
		Status:       string(sub.ProcessingState),
		StreamURL:    "/api/submissions/" + strconv.FormatInt(sub.ID, 10) + "/stream",
	})
}

// getSubmissionHandler handles GET /api/submissions/:id.
func (s *Server) getSubmissionHandler(c *echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return respondFail(c, http.StatusBadRequest, "validation_error", "submission id must be an integer")
	}

	sub, err := s.submissions.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, sub)
}

// listSubmissionsHandler handles GET /api/submissions.
func (s *Server) listSubmissionsHandler(c *echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	subs, err := s.submissions.List(c.Request().Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return respondWithMeta(c, http.StatusOK, subs, map[string]any{
		"count":  len(subs),
		"offset": offset,
	})
}

// userStatusHandler handles PATCH /api/submissions/:id/status.
func (s *Server) userStatusHandler(c *echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return respondFail(c, http.StatusBadRequest, "validation_error", "submission id must be an integer")
	}

	var req struct {
		UserStatus string `json:"user_status"`
	}
	if err := c.Bind(&req); err != nil {
		return respondFail(c, http.StatusBadRequest, "bad_request", err.Error())
	}

	if err := s.submissions.SetUserStatus(c.Request().Context(), id, models.UserStatus(req.UserStatus)); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{
		"submission_id": id,
		"user_status":   req.UserStatus,
	})
}

// reprocessHandler handles POST /api/submissions/:id/reprocess. The
// optional from query parameter selects the first stage forced to run
// fresh; earlier stages may reuse their cached results.
func (s *Server) reprocessHandler(c *echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return respondFail(c, http.StatusBadRequest, "validation_error", "submission id must be an integer")
	}

	fromStage := 0
	if v := c.QueryParam("from"); v != "" {
		fromStage, err = strconv.Atoi(v)
		if err != nil {
			return respondFail(c, http.StatusBadRequest, "validation_error", "from must be an integer stage number")
		}
	}

	if err := s.submissions.Reprocess(c.Request().Context(), id, fromStage); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusAccepted, map[string]any{
		"submission_id": id,
		"status":        string(models.ProcessingQueued),
		"from_stage":    fromStage,
	})
}

func submissionID(c *echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
