package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/app"
	iauth "github.com/fitos/notify/internal/auth"
	"github.com/fitos/notify/internal/handlers"
	"github.com/fitos/notify/internal/middleware"
	"github.com/fitos/notify/internal/monitoring"
	"github.com/fitos/notify/internal/realtime"
	"github.com/fitos/notify/internal/services"
)

// Options carries everything the router needs.
type Options struct {
	Config   *app.Config
	Auth     *iauth.Authenticator
	Pipeline *services.Pipeline
	// Hub enables the websocket stream when set.
	Hub        *realtime.Hub
	Monitoring *monitoring.Module
	// RateStore shares rate limit counters; nil keeps them in-process.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator must be provided")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline must be provided")
	}
	if opts.Monitoring == nil {
		opts.Monitoring = monitoring.NewModule(monitoring.Options{})
	}
	cfg := opts.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, cfg, opts.Monitoring)
	registerMetricsRoutes(r, cfg, opts.Monitoring)

	api := r.Group("/api")
	api.Use(middleware.Auth(opts.Auth))
	if cfg.Server.RateLimit.Enabled {
		api.Use(middleware.RateLimit(opts.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}

	p := opts.Pipeline
	registerJobRoutes(api, handlers.NewJobHandler(handlers.JobServices{
		Predictor:      p.Predictor,
		Dispatcher:     p.Dispatcher,
		Reminders:      p.Reminders,
		Checkins:       p.Checkins,
		PodDigests:     p.PodDigests,
		NPS:            p.NPS,
		ReviewRequests: p.ReviewRequests,
	}))

	// The stream authenticates itself from the query token.
	notificationHandler := handlers.NewNotificationHandler(p.Notifications, opts.Hub, opts.Auth)
	r.GET("/api/notifications/stream", notificationHandler.Stream)

	user := api.Group("", middleware.RequireUser())
	registerNotificationRoutes(user, notificationHandler,
		handlers.NewPreferenceHandler(p.Preferences),
		handlers.NewPredictionHandler(p.Predictor))
	registerDeviceRoutes(user, handlers.NewDeviceHandler(p.Devices))
	registerNPSRoutes(user, handlers.NewNPSHandler(p.NPS))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
