package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogapp "github.com/erp/catalogsync/internal/application/catalog"
	eventapp "github.com/erp/catalogsync/internal/application/event"
	integrationapp "github.com/erp/catalogsync/internal/application/integration"
	notificationapp "github.com/erp/catalogsync/internal/application/notification"
	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/notification"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/auth"
	"github.com/erp/catalogsync/internal/infrastructure/broker"
	"github.com/erp/catalogsync/internal/infrastructure/cache"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/erp/catalogsync/internal/infrastructure/ecommerce"
	"github.com/erp/catalogsync/internal/infrastructure/event"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/notes"
	"github.com/erp/catalogsync/internal/infrastructure/persistence"
	"github.com/erp/catalogsync/internal/infrastructure/ratelimit"
	"github.com/erp/catalogsync/internal/infrastructure/retry"
	"github.com/erp/catalogsync/internal/infrastructure/scheduler"
	"github.com/erp/catalogsync/internal/infrastructure/storage"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/erp/catalogsync/internal/interfaces/http/handler"
	"github.com/erp/catalogsync/internal/interfaces/http/middleware"
	"github.com/erp/catalogsync/internal/interfaces/http/router"
	"github.com/erp/catalogsync/internal/interfaces/http/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
		Version:    version,
		Sampling:   cfg.App.Env == "production",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting catalog sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	logs, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer func() {
		if err := logs.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	log = logs.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithQuietTables("outbox_events", "sync_attempts"))

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := telemetry.NewSyncMetrics(reg)

	platforms := integration.NewPlatforms(platformConfigs(cfg.Platforms)...)
	for _, p := range platforms.All() {
		log.Info("Platform configured",
			zap.String("platform", string(p.Code)),
			zap.String("kind", string(p.Kind)),
			zap.Bool("eligible", p.Eligible()),
		)
	}

	// Idempotency markers: delivery ids, echo suppression, event dedup
	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Repositories
	entityRepo := persistence.NewGormEntityRepository(db.DB)
	attemptRepo := persistence.NewGormSyncAttemptRepository(db.DB)
	sendRecordRepo := persistence.NewGormSendRecordRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	entityRepo.SetOutboxEventSaver(event.NewOutboxPublisher(eventSerializer,
		shared.WithMaxRetries(cfg.Event.MaxRetries)))

	// Broker: attempt log stream and notification transport
	var (
		attemptPublisher integration.AttemptPublisher = broker.NopPublisher{}
		dispatcher       notification.Dispatcher      = broker.LogDispatcher{Logger: log}
		rabbit           *broker.RabbitMQPublisher
	)
	if cfg.Broker.Enabled {
		rabbit, err = broker.NewRabbitMQPublisher(broker.Config{
			URL:            cfg.Broker.URL,
			Exchange:       cfg.Broker.Exchange,
			PublishTimeout: cfg.Broker.PublishTimeout,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to broker", zap.Error(err))
		}
		defer func() {
			if err := rabbit.Close(); err != nil {
				log.Error("Error closing broker", zap.Error(err))
			}
		}()
		attemptPublisher = rabbit
		dispatcher = rabbit
		syncMetrics.SetBrokerHealthy(true)
	}

	// Outbound propagation
	limiter := ratelimit.NewPlatformLimiter(
		ratelimit.WithRate(cfg.Sync.RequestsPerSecond, cfg.Sync.Burst),
		ratelimit.WithMaxWait(cfg.Sync.RequestTimeout),
		ratelimit.WithPlatforms(platforms),
		ratelimit.WithWaitObserver(syncMetrics.ObserveLimiterWait),
		ratelimit.WithLogger(log),
	)
	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:         cfg.Sync.RetryMaxAttempts,
		InitialDelay:        cfg.Sync.RetryInitialDelay,
		MaxDelay:            cfg.Sync.RetryMaxDelay,
		Multiplier:          cfg.Sync.RetryMultiplier,
		RandomizationFactor: retry.DefaultConfig().RandomizationFactor,
	})

	registry := integrationapp.NewRegistry(entityRepo, log)
	guard := integrationapp.NewLoopGuard(store,
		integrationapp.WithEchoWindow(cfg.Sync.EchoWindow),
		integrationapp.WithDeliveryTTL(cfg.Sync.DeliveryDedupTTL),
		integrationapp.WithLoopGuardMetrics(syncMetrics),
		integrationapp.WithLoopGuardLogger(log),
	)
	killSwitch := integrationapp.NewSyncSwitch(cfg.Sync.KillSwitch)
	gate := integrationapp.NewChangeGate(killSwitch, guard)

	deps := integrationapp.AdapterDeps{
		Store:           entityRepo,
		Registry:        registry,
		Limiter:         limiter,
		Policy:          policy,
		Cache:           cache.NewLookupCache(cfg.Sync.LookupCacheSize, cfg.Sync.LookupCacheTTL),
		Markers:         store,
		Guard:           guard,
		Metrics:         syncMetrics,
		DeleteMarkerTTL: cfg.Sync.DeleteDedupTTL,
		Logger:          log,
	}
	adapters, decoders := buildAdapters(platforms, deps, log)

	orchestrator := integrationapp.NewOrchestrator(platforms, adapters, gate, entityRepo,
		integrationapp.NewCascadePropagator(entityRepo, syncMetrics, log),
		integrationapp.WithAttemptRepository(attemptRepo),
		integrationapp.WithAttemptPublisher(attemptPublisher),
		integrationapp.WithOrchestratorMetrics(syncMetrics),
		integrationapp.WithOrchestratorLogger(log),
	)

	// Change events flow entity tx -> outbox -> bus -> orchestrator
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewIdempotentHandler(orchestrator, store, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			TTL:              cfg.Event.IdempotencyTTL,
			Enabled:          true,
			ReleaseOnFailure: true,
		}),
	), orchestrator.EventTypes()...)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorConfig := event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
			CleanupInterval:  event.DefaultOutboxProcessorConfig().CleanupInterval,
		}
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorConfig, log)
		if err := outboxProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Application services
	entityService := catalogapp.NewEntityService(entityRepo, platforms, log)
	resyncService := integrationapp.NewResyncService(orchestrator, entityRepo, entityRepo, attemptRepo, killSwitch,
		integrationapp.WithSweepWindow(cfg.Sync.ResyncLookback, cfg.Sync.ResyncBatchSize),
		integrationapp.WithResyncLogger(log),
	)
	inboundService := integrationapp.NewInboundService(platforms, decoders, entityRepo, registry, guard, log)
	notificationService := notificationapp.NewService(sendRecordRepo, dispatcher,
		notificationapp.WithDedupWindow(cfg.Notification.DedupWindow),
		notificationapp.WithMetrics(syncMetrics),
		notificationapp.WithInflightMarkers(store),
		notificationapp.WithLogger(log),
	)
	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	retentionOpts := []integrationapp.RetentionOption{integrationapp.WithRetentionLogger(log)}
	if cfg.Archive.Enabled {
		archive, err := storage.NewS3AttemptArchive(&cfg.Archive, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create attempt archive", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare archive bucket", zap.Error(err))
		}
		cancel()
		retentionOpts = append(retentionOpts, integrationapp.WithArchiver(archive, integrationapp.DefaultArchiveBatch))
		log.Info("Attempt archive enabled", zap.String("bucket", archive.GetBucket()))
	}
	retentionService := integrationapp.NewAttemptRetentionService(attemptRepo, cfg.Sync.AttemptRetention, retentionOpts...)

	// Background jobs
	jobs := scheduler.New(scheduler.DefaultConfig(), log)
	mustAdd := func(name, schedule string, fn scheduler.JobFunc) {
		if err := jobs.Add(name, schedule, fn); err != nil {
			log.Fatal("Invalid job schedule", zap.String("job", name), zap.String("schedule", schedule), zap.Error(err))
		}
	}
	mustAdd("resync-sweep", cfg.Sync.ResyncCron, func(ctx context.Context) error {
		_, err := resyncService.Sweep(ctx)
		return err
	})
	mustAdd("attempt-cleanup", "@daily", func(ctx context.Context) error {
		_, err := retentionService.Prune(ctx)
		return err
	})
	mustAdd("notification-cleanup", cfg.Notification.CleanupCron, func(ctx context.Context) error {
		_, err := notificationService.Cleanup(ctx, cfg.Notification.Retention)
		return err
	})
	if rabbit != nil {
		mustAdd("broker-health", "@every 30s", func(context.Context) error {
			syncMetrics.SetBrokerHealthy(rabbit.IsHealthy())
			return nil
		})
	}
	jobs.Start(context.Background())
	defer func() {
		if err := jobs.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}()

	validator, err := webhook.NewValidator()
	if err != nil {
		log.Fatal("Failed to compile webhook schemas", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Probes and metrics sit outside the versioned API
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", func(context.Context) error { return db.Ping() }).
		AddCheck("markers", cache.HealthCheck(store))
	if rabbit != nil {
		systemHandler.AddCheck("broker", func(context.Context) error {
			if !rabbit.IsHealthy() {
				return errors.New("broker connection closed")
			}
			return nil
		})
	}
	engine.GET("/health", systemHandler.Ping)
	engine.GET("/ready", systemHandler.Ready)
	engine.GET("/info", systemHandler.GetSystemInfo)
	if cfg.Telemetry.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	jwtService := auth.NewJWTService(cfg.JWT)
	webhookLimiter := middleware.NewRateLimiter(cfg.Sync.RequestsPerSecond*10, cfg.Sync.Burst*10, 1024)

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(
			middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
			middleware.SpanEnricher(),
			middleware.Profiling(),
			middleware.NewHTTPMetrics(reg).Middleware(),
		),
	)
	routes := r.Register(router.Groups(router.Handlers{
		Entity:       handler.NewEntityHandler(entityService),
		Sync:         handler.NewSyncHandler(resyncService, killSwitch),
		Outbox:       handler.NewOutboxHandler(outboxService),
		Notification: handler.NewNotificationHandler(notificationService, cfg.Notification.Retention),
		Webhook:      handler.NewWebhookHandler(inboundService, validator, cfg.Webhook.RequireSignature),
	}, router.Guards{
		Auth: middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
			JWTService: jwtService,
			Logger:     log,
		}),
		Webhook: []gin.HandlerFunc{
			middleware.BodyLimit(cfg.Webhook.MaxBodySize),
			middleware.RateLimitByKey(webhookLimiter, func(c *gin.Context) string {
				return c.Param("platform")
			}),
		},
	})...).Setup()
	for _, route := range routes {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}
	log.Info("Routes registered", zap.Int("count", len(routes)))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// platformConfigs converts the configured platforms to their domain form
func platformConfigs(in []config.PlatformConfig) []integration.PlatformConfig {
	out := make([]integration.PlatformConfig, 0, len(in))
	for _, p := range in {
		kinds := make([]catalog.EntityKind, 0, len(p.EntityKinds))
		for _, k := range p.EntityKinds {
			kinds = append(kinds, catalog.EntityKind(k))
		}
		out = append(out, integration.PlatformConfig{
			Code:              integration.PlatformCode(p.Code),
			Kind:              integration.PlatformKind(p.Kind),
			BaseURL:           p.BaseURL,
			Key:               p.Key,
			Secret:            p.Secret,
			WebhookSecret:     p.WebhookSecret,
			DatabaseID:        p.DatabaseID,
			Enabled:           p.Enabled,
			RequestsPerSecond: p.RequestsPerSecond,
			Burst:             p.Burst,
			Timeout:           p.Timeout,
			EntityKinds:       kinds,
		})
	}
	return out
}

// buildAdapters creates a client and adapter for every eligible platform. The
// clients also decode the platform's webhooks.
func buildAdapters(
	platforms *integration.Platforms,
	deps integrationapp.AdapterDeps,
	log *zap.Logger,
) ([]*integrationapp.PlatformAdapter, map[integration.PlatformCode]integration.InboundDecoder) {
	var adapters []*integrationapp.PlatformAdapter
	decoders := make(map[integration.PlatformCode]integration.InboundDecoder)

	for _, p := range platforms.Eligible() {
		var (
			client  integration.PlatformClient
			decoder integration.InboundDecoder
			err     error
		)
		switch p.Kind {
		case integration.PlatformKindCommerce:
			cfg := ecommerce.NewCommerceConfig(p)
			if err = cfg.Validate(); err == nil {
				var c *ecommerce.CommerceClient
				c, err = ecommerce.NewCommerceClient(cfg, tracedClient(cfg.Timeout))
				client, decoder = c, c
			}
		case integration.PlatformKindNotes:
			cfg := notes.NewNotesConfig(p)
			if err = cfg.Validate(); err == nil {
				var c *notes.Client
				c, err = notes.NewClient(cfg, tracedClient(cfg.Timeout))
				client, decoder = c, c
			}
		default:
			log.Warn("Unsupported platform kind", zap.String("platform", string(p.Code)), zap.String("kind", string(p.Kind)))
			continue
		}
		if err != nil {
			log.Fatal("Invalid platform configuration", zap.String("platform", string(p.Code)), zap.Error(err))
		}
		adapters = append(adapters, integrationapp.NewPlatformAdapter(client, p, deps))
		decoders[p.Code] = decoder
	}
	return adapters, decoders
}

func tracedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
