package service

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandler(t *testing.T) {
	svc := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	svc.healthz.handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsHandler(t *testing.T) {
	svc := New()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	svc.metrics.handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestShutdownBeforeStart(t *testing.T) {
	svc := New()
	// No listener was ever opened; Shutdown must be a no-op.
	svc.Shutdown()
}
