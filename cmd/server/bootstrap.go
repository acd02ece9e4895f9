package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/api"
	"github.com/fitos/notify/internal/app"
	"github.com/fitos/notify/internal/app/scheduler"
	iauth "github.com/fitos/notify/internal/auth"
	"github.com/fitos/notify/internal/broker"
	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/database"
	"github.com/fitos/notify/internal/middleware"
	"github.com/fitos/notify/internal/monitoring"
	"github.com/fitos/notify/internal/monitoring/checks"
	"github.com/fitos/notify/internal/push"
	"github.com/fitos/notify/internal/realtime"
	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/httpclient"
	"github.com/fitos/notify/pkg/logger"
)

const probeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisStore
	Store      cache.Store
	Publisher  *broker.Publisher
	Hub        *realtime.Hub
	Pipeline   *services.Pipeline
	Scheduler  *scheduler.Scheduler
	Monitoring *monitoring.Module
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, caches, pipeline services,
// scheduled jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.Redis.RedisStoreConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			stack.Store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	opts := services.PipelineOptions{
		Counter:              stack.Store,
		PredictorConcurrency: cfg.Notifications.PredictorConcurrency,
		Retention:            cfg.Notifications.Retention.Policy(),
	}
	if stack.Redis == nil {
		opts.CacheSweeper = dbStore
	}

	if cfg.Notifications.Realtime {
		stack.Hub = realtime.NewHub()
		opts.Hub = stack.Hub
	}

	if cfg.Push.FCM.Enabled {
		gateway, gwErr := push.NewFCMGateway(ctx, cfg.Push.FCM.GatewayConfig())
		if gwErr != nil {
			return nil, fmt.Errorf("initialise fcm gateway: %w", gwErr)
		}
		opts.Gateway = gateway
		log.Info("fcm gateway enabled", zap.String("project", cfg.Push.FCM.ProjectID))
	}

	if cfg.Broker.Enabled {
		if stack.Publisher, err = broker.NewPublisher(cfg.Broker.PublisherConfig()); err != nil {
			return nil, fmt.Errorf("initialise broker publisher: %w", err)
		}
		opts.Publisher = stack.Publisher
	}

	if cfg.Analytics.Enabled {
		source, srcErr := services.NewHTTPOpenSource(cfg.Analytics.BaseURL, cfg.Analytics.APIKey, httpclient.New(cfg.Analytics.Timeout))
		if srcErr != nil {
			return nil, fmt.Errorf("initialise analytics source: %w", srcErr)
		}
		opts.OpenSource = source
	}

	stack.Pipeline, err = services.NewPipeline(stack.DB, opts)
	if err != nil {
		return nil, fmt.Errorf("initialise pipeline: %w", err)
	}

	stack.Scheduler = newScheduler(cfg, stack)
	if cfg.Scheduler.Enabled {
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start scheduled jobs: %w", err)
		}
	}

	stack.Monitoring = newMonitoring(cfg, stack)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Options{
		Config:     cfg,
		Auth:       iauth.NewAuthenticator(jwtSvc, cfg.Auth.ServiceRoleKey),
		Pipeline:   stack.Pipeline,
		Hub:        stack.Hub,
		Monitoring: stack.Monitoring,
		RateStore:  middleware.NewCacheRateStore(stack.Store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func newScheduler(cfg *app.Config, stack *runtimeStack) *scheduler.Scheduler {
	var opts []scheduler.Option
	if cfg.Scheduler.Lock {
		opts = append(opts, scheduler.WithLocker(stack.Store, 0))
	}
	return scheduler.New(scheduler.PipelineJobs(cfg.Scheduler, stack.Pipeline), opts...)
}

func newMonitoring(cfg *app.Config, stack *runtimeStack) *monitoring.Module {
	mod := monitoring.NewModule(monitoring.Options{})
	health := mod.Health()

	health.RegisterReadiness(checks.Database(stack.DB, probeTimeout))
	backend := "database"
	if stack.Redis != nil {
		backend = "redis"
	}
	health.RegisterReadiness(checks.Cache(stack.Store, backend, probeTimeout))

	var source checks.JobStatusSource
	if cfg.Scheduler.Enabled {
		source = stack.Scheduler
	}
	health.RegisterLiveness(checks.Scheduler(source, 0, nil))
	return mod
}

// Shutdown stops scheduled jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil && s.Scheduler.Running() {
		stopCtx := s.Scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("scheduled jobs still running at shutdown")
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("broker shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
