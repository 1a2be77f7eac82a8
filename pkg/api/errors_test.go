package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/services"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation error", services.NewValidationError("email", "is not a valid address"), http.StatusBadRequest, "validation_error"},
		{"not found", services.ErrNotFound, http.StatusNotFound, "not_found"},
		{"quota exceeded", services.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/submissions/1", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, respondError(c, tc.err))
			assert.Equal(t, tc.wantStatus, rec.Code)

			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)

			if tc.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, "86400", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRespondError_InternalHidesDetail(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/submissions/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, respondError(c, errors.New("pq: password authentication failed")))

	env := decodeEnvelope(t, rec)
	assert.NotContains(t, env.Error.Message, "password")
}

func TestRespond_Envelope(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, respondWithMeta(c, http.StatusOK, []string{"a"}, map[string]any{"count": 1}))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.EqualValues(t, 1, env.Metadata["count"])
}
