package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, controller *HealthController) (int, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/health", controller.Status)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w.Code, response
}

func okCheck(context.Context) error { return nil }

func TestHealthController_Status(t *testing.T) {
	t.Run("returns healthy when every dependency answers", func(t *testing.T) {
		controller := NewHealthController(map[string]HealthCheck{
			"database":   okCheck,
			"mirror":     okCheck,
			"task_queue": okCheck,
		}, "1.0.0")

		code, response := serveHealth(t, controller)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "1.0.0", response.Version)
		assert.Equal(t, "ok", response.Checks["database"])
		assert.Equal(t, "ok", response.Checks["mirror"])
		assert.Equal(t, "ok", response.Checks["task_queue"])
		assert.Contains(t, response.Time, "T")
	})

	t.Run("returns unhealthy when a check fails", func(t *testing.T) {
		controller := NewHealthController(map[string]HealthCheck{
			"database": okCheck,
			"mirror":   func(context.Context) error { return errors.New("database is closed") },
		}, "1.0.0")

		code, response := serveHealth(t, controller)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "error: database is closed", response.Checks["mirror"])
		assert.Equal(t, "ok", response.Checks["database"])
	})

	t.Run("returns unhealthy without a database check", func(t *testing.T) {
		code, response := serveHealth(t, NewHealthController(nil, ""))

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not configured", response.Checks["database"])
		assert.Empty(t, response.Version)
	})
}
