package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"ratingcore/internal/admin"
	"ratingcore/internal/broker"
	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/loader"
	"ratingcore/internal/logger"
	"ratingcore/internal/pipeline"
	"ratingcore/internal/reload"
	"ratingcore/internal/scratch"
	"ratingcore/pkg/bootstrap"
	"ratingcore/pkg/health"
	"ratingcore/pkg/logging"
	"ratingcore/pkg/metrics"
	"ratingcore/pkg/middleware"
	"ratingcore/pkg/models"
	"ratingcore/pkg/ratelimit"
	"ratingcore/pkg/tracing"
)

const serviceName = "rating-service"

type App struct {
	*bootstrap.Base
	stores         *bootstrap.Stores
	registry       *cache.Registry
	reloader       *reload.Reloader
	pipeline       *pipeline.Pipeline
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, serviceName)

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRatingMetrics()
	metrics.RegisterCacheMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterAdminMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initCaches(ctx); err != nil {
		return fmt.Errorf("failed to initialize caches: %w", err)
	}

	if err := a.InitBroker(serviceName, a.Config.Rating.Workers); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initHTTPServer(ctx)
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	stores, err := bootstrap.OpenStores(ctx, a.Config.Database, a.Logger,
		bootstrap.Redis, bootstrap.Postgres, bootstrap.MongoDB)
	if err != nil {
		return err
	}
	a.stores = stores
	return nil
}

func (a *App) initCaches(ctx context.Context) error {
	defs := make([]cache.Definition, 0, len(a.Config.Caches))
	for _, c := range a.Config.Caches {
		defs = append(defs, cache.Definition{
			Name:   c.Name,
			Kind:   cache.Kind(c.Kind),
			Source: c.Source,
			Fields: c.Fields,
		})
	}
	registry, err := cache.NewRegistry(defs)
	if err != nil {
		return err
	}
	a.registry = registry

	var prefixes loader.PrefixSource
	if a.stores.Postgres != nil {
		prefixes = loader.NewBreakerPrefixSource(
			loader.NewPostgresPrefixRepository(a.stores.Postgres, serviceName),
			a.Config.CircuitBreaker,
		)
	}
	var validities loader.ValiditySource
	if a.stores.Mongo != nil {
		validities = loader.NewBreakerValiditySource(
			loader.NewMongoValidityRepository(a.stores.MongoDatabase(), serviceName),
			a.Config.CircuitBreaker,
		)
	}

	a.reloader = reload.New(registry, prefixes, validities, a.Logger)

	// records that reach an unloaded cache are retried by the consumer
	if _, err := a.reloader.ReloadAll(ctx); err != nil {
		a.Logger.WarnwCtx(ctx, "Initial cache load incomplete", "error", err, "unloaded", registry.Unloaded())
	}
	return nil
}

func (a *App) initPipeline() error {
	store, err := scratch.New(a.Config.Rating.Scratch, a.stores.Redis)
	if err != nil {
		return err
	}

	stages, err := pipeline.NewStages(a.Config.Rating)
	if err != nil {
		return err
	}

	p := pipeline.New(stages, store, a.Producer, a.outputTopic(), serviceName, a.Logger)
	if err := p.Init(a.registry); err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if rl := a.Config.Admin.RateLimit; rl.Enabled {
		limiter := ratelimit.New(rl)
		go limiter.Run(ctx)
		router.Use(limiter.Middleware())
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	admin.NewHandler(a.registry, a.reloader, a.Logger).RegisterRoutes(router)

	checks := health.NewRegistry()
	checks.Critical("caches", health.Caches(a.registry))
	if a.stores.Redis != nil {
		checks.Critical("redis", health.Redis(a.stores.Redis))
	}
	if a.stores.Postgres != nil {
		checks.Optional("postgresql", health.Postgres(a.stores.Postgres))
	}
	if a.stores.Mongo != nil {
		checks.Optional("mongodb", health.Mongo(a.stores.Mongo))
	}
	router.GET("/health", checks.Handler())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) inputTopic() string {
	if t := a.Config.Broker.Kafka.InputTopic; t != "" {
		return t
	}
	return constants.DefaultInputTopic
}

func (a *App) outputTopic() string {
	if t := a.Config.Broker.Kafka.OutputTopic; t != "" {
		return t
	}
	return constants.DefaultOutputTopic
}

func (a *App) Run(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, serviceName)
	g, gCtx := errgroup.WithContext(ctx)
	workers := a.Consumers

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if interval := time.Duration(a.Config.Rating.Reload.IntervalSeconds) * time.Second; interval > 0 {
		g.Go(func() error {
			a.reloader.Start(gCtx, interval)
			return nil
		})
	}

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		if err := a.startReloadConsumer(g, gCtx, topic); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to create reload event consumer, event-driven reload disabled", "error", err)
		}
	}

	inputTopic := a.inputTopic()
	for i, consumer := range workers {
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting rating worker", "worker", i, "topic", inputTopic)
			return consumer.Consume(gCtx, inputTopic, a.pipeline.Handle)
		})
	}

	return g.Wait()
}

// startReloadConsumer subscribes to reload events under a group of its own
// so that every instance sees every event.
func (a *App) startReloadConsumer(g *errgroup.Group, ctx context.Context, topic string) error {
	cfg := a.Config.Broker
	cfg.Kafka.GroupID = fmt.Sprintf("%s-reload-%s", cfg.Kafka.GroupID, uuid.NewString())
	cfg.Kafka.DLQTopic = ""

	consumer, err := broker.NewConsumer(cfg, serviceName, a.Logger)
	if err != nil {
		return err
	}
	a.Consumers = append(a.Consumers, consumer)

	handler := reload.NewHandler(a.reloader, a.Logger)
	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Starting reload event consumer", "topic", topic)
		return consumer.Consume(ctx, topic, func(cCtx context.Context, msg models.MessageEnvelope) error {
			return handler.HandleReloadEvent(cCtx, msg)
		})
	})
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down rating service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.stores != nil {
			if err := a.stores.Close(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
