package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fitos/notify/internal/app"
	iauth "github.com/fitos/notify/internal/auth"
	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/monitoring"
	"github.com/fitos/notify/internal/services"
)

const testServiceKey = "router-service-key"

func newTestRouter(t *testing.T, cfg *app.Config, mon *monitoring.Module) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	pipeline, err := services.NewPipeline(db, services.PipelineOptions{})
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret-0123456789abcdef", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	router, err := NewRouter(Options{
		Config:     cfg,
		Auth:       iauth.NewAuthenticator(jwtSvc, testServiceKey),
		Pipeline:   pipeline,
		Monitoring: mon,
	})
	require.NoError(t, err)
	return router
}

func monitoredConfig() *app.Config {
	return &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/internal/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Options{})
	require.ErrorContains(t, err, "config")

	_, err = NewRouter(Options{Config: &app.Config{}})
	require.ErrorContains(t, err, "authenticator")

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "secret"})
	require.NoError(t, err)
	_, err = NewRouter(Options{Config: &app.Config{}, Auth: iauth.NewAuthenticator(jwtSvc, "")})
	require.ErrorContains(t, err, "pipeline")
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	mon := monitoring.NewModule(monitoring.Options{})
	mon.Health().RegisterReadiness(monitoring.NewCheck("cache", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Component: "cache", Status: monitoring.StatusDegraded, Details: "slow"}
	}))
	r := newTestRouter(t, monitoredConfig(), mon)

	w := do(r, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"degraded"`)

	w = do(r, http.MethodGet, "/internal/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "fitos_api_latency_seconds")
}

func TestRouterReadinessDownReturns503(t *testing.T) {
	mon := monitoring.NewModule(monitoring.Options{})
	mon.Health().RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Component: "database", Status: monitoring.StatusDown}
	}))
	r := newTestRouter(t, monitoredConfig(), mon)

	require.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/health/ready", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/health", "").Code)
}

func TestRouterWithMonitoringDisabled(t *testing.T) {
	r := newTestRouter(t, &app.Config{}, nil)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "disabled")

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRoutesAndFallback(t *testing.T) {
	r := newTestRouter(t, monitoredConfig(), nil)

	w := do(r, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"success":false`))

	w = do(r, http.MethodPost, "/api/jobs/pod-digests", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/jobs/pod-digests", testServiceKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/notifications", testServiceKey)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Without a hub the stream is not served.
	w = do(r, http.MethodGet, "/api/notifications/stream", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs/dispatch", nil)
	req.Header.Set("Origin", "https://app.fitos.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
