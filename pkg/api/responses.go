package api

import (
	echo "github.com/labstack/echo/v5"
)

// envelope is the uniform response shape for every JSON endpoint.
type envelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *errorBody     `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *echo.Context, status int, data any) error {
	return c.JSON(status, &envelope{Success: true, Data: data})
}

func respondWithMeta(c *echo.Context, status int, data any, meta map[string]any) error {
	return c.JSON(status, &envelope{Success: true, Data: data, Metadata: meta})
}

func respondFail(c *echo.Context, status int, code, message string) error {
	return c.JSON(status, &envelope{Success: false, Error: &errorBody{Code: code, Message: message}})
}

// EnrichResponse is returned by POST /api/form/enrich.
type EnrichResponse struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
	Cached    bool   `json:"cached"`
}

// SubmitResponse is returned by POST /api/submit.
type SubmitResponse struct {
	SubmissionID int64  `json:"submission_id"`
	Status       string `json:"status"`
	StreamURL    string `json:"stream_url"`
}

// HealthCheck is one component's entry in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
