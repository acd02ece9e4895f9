package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/api"
	"github.com/fitos/notify/internal/app"
	iauth "github.com/fitos/notify/internal/auth"
	sharedtestutil "github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/middleware"
	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/internal/realtime"
	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// ServiceKey is the service-role key accepted by the test router.
const ServiceKey = "test-service-role-key"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Pipeline *services.Pipeline
	Hub      *realtime.Hub
}

// EnvOption customises NewEnv.
type EnvOption func(*app.Config, *services.PipelineOptions)

// WithRateLimit enables request limiting on /api.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config, _ *services.PipelineOptions) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// WithPipelineOptions adjusts the pipeline collaborators, e.g. a fake gateway.
func WithPipelineOptions(fn func(*services.PipelineOptions)) EnvOption {
	return func(_ *app.Config, opts *services.PipelineOptions) {
		fn(opts)
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT:            app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
			ServiceRoleKey: ServiceKey,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	hub := realtime.NewHub()
	pipelineOpts := services.PipelineOptions{Hub: hub, PredictorConcurrency: 2}
	for _, opt := range opts {
		opt(cfg, &pipelineOpts)
	}

	pipeline, err := services.NewPipeline(db, pipelineOpts)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Options{
		Config:    cfg,
		Auth:      iauth.NewAuthenticator(jwtSvc, ServiceKey),
		Pipeline:  pipeline,
		Hub:       hub,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Pipeline: pipeline,
		Hub:      hub,
	}
}

// CreateUser inserts a user with the given role and optional trainer.
func (e *Env) CreateUser(id, role string, trainerID *string) *models.User {
	e.T.Helper()

	user := &models.User{
		BaseModel: models.BaseModel{ID: id},
		Email:     id + "@example.com",
		FirstName: "First-" + id,
		LastName:  "Last",
		Role:      role,
		TrainerID: trainerID,
		Timezone:  "UTC",
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// TokenFor issues an access token for userID.
func (e *Env) TokenFor(userID string) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID: userID,
		Role:   "authenticated",
	})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
