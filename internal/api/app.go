package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/gorax/flowengine/internal/analytics"
	"github.com/gorax/flowengine/internal/api/handlers"
	apiMiddleware "github.com/gorax/flowengine/internal/api/middleware"
	"github.com/gorax/flowengine/internal/config"
	"github.com/gorax/flowengine/internal/credential"
	"github.com/gorax/flowengine/internal/database/connectors"
	"github.com/gorax/flowengine/internal/datasource"
	"github.com/gorax/flowengine/internal/errortracking"
	"github.com/gorax/flowengine/internal/executor"
	"github.com/gorax/flowengine/internal/metrics"
	"github.com/gorax/flowengine/internal/tracing"
	"github.com/gorax/flowengine/internal/workflow"
)

// App holds application dependencies. Trimmed to the spec's execution core
// plus the ambient stack the teacher carries (metrics, tracing, error
// tracking, credential encryption) — the teacher's wider SaaS surface
// (tenants, billing, marketplace, collaboration, OAuth/SSO, schedules,
// webhooks, AI builder) isn't a collaborator of this spec and was removed
// rather than carried along unused; see DESIGN.md for the per-subsystem
// accounting.
type App struct {
	config *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	router *chi.Mux

	errorTracker *errortracking.Tracker

	metrics          *metrics.Metrics
	metricsRegistry  *prometheus.Registry
	dbStatsCollector *metrics.DBStatsCollector
	metricsStopCtx   context.Context
	metricsStopFunc  context.CancelFunc

	credentialService credential.Service
	analyticsService  *analytics.Service

	healthHandler     *handlers.HealthHandler
	credentialHandler *handlers.CredentialHandler
	datasourceHandler *handlers.DatasourceHandler
	planHandler       *handlers.PlanHandler

	datasourceCache *executor.DatasourceCache
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	db, err := sqlx.Connect("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)
	app.db = db

	app.metrics = metrics.NewMetrics()
	app.metricsRegistry = prometheus.NewRegistry()
	if err := app.metrics.Register(app.metricsRegistry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	logger.Info("Metrics initialized")

	app.metricsStopCtx, app.metricsStopFunc = context.WithCancel(context.Background())
	app.dbStatsCollector = metrics.NewDBStatsCollector(app.metrics, db.DB, "main", logger)
	go app.dbStatsCollector.Start(app.metricsStopCtx, 15*time.Second)
	logger.Info("DB stats collector started", "interval", "15s")

	errorTracker, err := errortracking.Initialize(cfg.Observability)
	if err != nil {
		logger.Warn("failed to initialize Sentry", "error", err)
	}
	app.errorTracker = errorTracker

	app.healthHandler = handlers.NewHealthHandler(db, nil)

	// Credential service: encryption is KMS-backed in production, a simple
	// master-key scheme in development — same branch the teacher uses.
	credentialRepo := credential.NewRepository(db)

	var encryptionService credential.EncryptionServiceInterface
	if cfg.Credential.UseKMS {
		if cfg.Credential.KMSKeyID == "" {
			return nil, fmt.Errorf("CREDENTIAL_KMS_KEY_ID is required when USE_KMS is true")
		}

		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(cfg.Credential.KMSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for KMS: %w", err)
		}

		kmsClient := kms.NewFromConfig(awsCfg)
		kmsEncryptionService, err := credential.NewKMSEncryptionService(kmsClient, cfg.Credential.KMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS encryption service: %w", err)
		}

		encryptionService = credential.NewKMSEncryptionAdapter(kmsEncryptionService)
		logger.Info("Credential encryption initialized", "mode", "KMS", "key_id", cfg.Credential.KMSKeyID, "region", cfg.Credential.KMSRegion)
	} else {
		masterKey, err := base64.StdEncoding.DecodeString(cfg.Credential.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode credential master key: %w", err)
		}

		simpleEncryption, err := credential.NewSimpleEncryptionService(masterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create simple encryption service: %w", err)
		}

		encryptionService = credential.NewSimpleEncryptionAdapter(simpleEncryption)
		logger.Warn("Credential encryption initialized", "mode", "simple", "warning", "Use KMS in production")
	}

	app.credentialService = credential.NewServiceImpl(credentialRepo, encryptionService, logger)
	app.credentialHandler = handlers.NewCredentialHandler(app.credentialService, logger)

	credentialInjector := credential.NewInjector(credentialRepo, encryptionService)

	// Datasource/connection CRUD: names which credential and database type
	// a step should resolve at execution time. The connection string itself
	// never leaves the credential subsystem's encryption boundary.
	datasourceRepo := datasource.NewRepository(db)
	datasourceLoader := datasource.NewLoader(datasourceRepo, credentialInjector, handlers.DefaultTenantID)
	connectorFactory := connectors.NewConnectorFactory()
	app.datasourceCache = executor.NewDatasourceCache(datasourceLoader, connectorFactory.CreateConnector)
	app.datasourceHandler = handlers.NewDatasourceHandler(datasourceRepo, app.datasourceCache, logger)

	// Analytics: only the execution-trend aggregate the plan handler
	// exposes (GET /api/analytics/trends) is wired — the teacher's wider
	// tenant analytics dashboard isn't a spec collaborator.
	analyticsRepo := analytics.NewRepository(db)
	app.analyticsService = analytics.NewService(analyticsRepo)

	// Plan-execution core (C5-C14): buffer store, executor registry (plus
	// the pooled SQL action types backed by the datasource cache), job
	// builder/runner, listeners, plan repository/service, and the HTTP
	// handler exposing the spec's /api/execute surface.
	planRepo := workflow.NewPlanRepository(db)
	execRegistry := executor.DefaultRegistry
	executor.RegisterBuiltins(execRegistry)
	executor.RegisterDatabaseActions(execRegistry, app.datasourceCache)
	bufferStore := executor.NewBufferStore(executor.DefaultMaxBufferedRecords)
	planListeners := executor.NewListeners(planRepo)
	jobBuilder := executor.NewJobBuilder()
	jobRunner := executor.NewJobRunner(bufferStore, execRegistry, planListeners, logger, 8)
	cancelRegistry := executor.NewCancelRegistry()
	planLauncher := executor.NewPlanLauncher(jobBuilder, jobRunner, cancelRegistry, logger)
	planService := workflow.NewPlanService(planRepo, planLauncher, logger)
	app.planHandler = handlers.NewPlanHandler(planService, planRepo, app.analyticsService, logger)

	app.setupRouter()

	return app, nil
}

// Router returns the HTTP router.
func (a *App) Router() http.Handler {
	return a.router
}

// Close cleans up application resources.
func (a *App) Close() error {
	if a.metricsStopFunc != nil {
		a.metricsStopFunc()
	}
	if a.dbStatsCollector != nil {
		a.dbStatsCollector.Stop()
	}
	if a.errorTracker != nil {
		a.errorTracker.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

func (a *App) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	httpLogLevel := parseHTTPLogLevel(a.config.Log.HTTPLogLevel)
	r.Use(apiMiddleware.StructuredLoggerWithConfig(a.logger, apiMiddleware.HTTPLoggerConfig{
		LogLevel: httpLogLevel,
	}))

	securityHeadersConfig := apiMiddleware.SecurityHeadersConfig{
		EnableHSTS:    a.config.SecurityHeader.EnableHSTS,
		HSTSMaxAge:    a.config.SecurityHeader.HSTSMaxAge,
		CSPDirectives: a.config.SecurityHeader.CSPDirectives,
		FrameOptions:  a.config.SecurityHeader.FrameOptions,
	}
	r.Use(apiMiddleware.SecurityHeaders(securityHeadersConfig))

	if a.config.Observability.TracingEnabled {
		r.Use(tracing.HTTPMiddleware())
	}

	if a.errorTracker != nil {
		r.Use(apiMiddleware.SentryMiddleware(a.errorTracker))
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	corsMiddleware, err := apiMiddleware.NewCORSMiddleware(a.config.CORS, a.config.Server.Env)
	if err != nil {
		a.logger.Error("failed to create CORS middleware", "error", err)
	} else {
		r.Use(corsMiddleware)
	}

	// Health check endpoints (no auth required)
	r.Get("/health", a.healthHandler.Health)
	r.Get("/ready", a.healthHandler.Ready)

	// Prometheus metrics endpoint (no auth required for scraping)
	if a.config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{}))
	}

	// Swagger API documentation (no auth required)
	r.Get("/api/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/api/swagger.json"),
	))

	// Plan execution surface (spec contract: bare routes, snake_case JSON,
	// {"detail": "..."} errors — not nested under /api/v1).
	r.Post("/api/execute", a.planHandler.Execute)
	r.Get("/api/executions", a.planHandler.ListExecutions)
	r.Get("/api/execution/{id}", a.planHandler.GetExecution)
	r.Get("/api/executions/{id}/nodes", a.planHandler.ListNodes)
	r.Get("/api/executions/{id}/timeline", a.planHandler.Timeline)
	r.Get("/api/executions/{id}/metrics", a.planHandler.Metrics)
	r.Get("/api/executions/{id}/bottlenecks", a.planHandler.Bottlenecks)
	r.Post("/api/executions/{id}/cancel", a.planHandler.Cancel)
	r.Post("/api/executions/{id}/rerun", a.planHandler.Rerun)
	r.Get("/api/analytics/trends", a.planHandler.AnalyticsTrends)

	// Datasource/connection CRUD and credential routes, dev-auth gated the
	// same way the teacher gates its /api/v1 tree.
	r.Route("/api/v1", func(r chi.Router) {
		if a.config.Server.Env == "development" {
			r.Use(apiMiddleware.DevAuth())
		} else {
			r.Use(apiMiddleware.KratosAuth(a.config.Kratos))
		}

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", a.datasourceHandler.List)
			r.Post("/", a.datasourceHandler.Create)
			r.Get("/{id}", a.datasourceHandler.Get)
			r.Delete("/{id}", a.datasourceHandler.Delete)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", a.credentialHandler.List)
			r.Post("/", a.credentialHandler.Create)
			r.Get("/{credentialID}", a.credentialHandler.Get)
			r.Get("/{credentialID}/value", a.credentialHandler.GetValue) // Sensitive endpoint
			r.Put("/{credentialID}", a.credentialHandler.Update)
			r.Delete("/{credentialID}", a.credentialHandler.Delete)
			r.Post("/{credentialID}/rotate", a.credentialHandler.Rotate)
			r.Get("/{credentialID}/versions", a.credentialHandler.ListVersions)
			r.Get("/{credentialID}/access-log", a.credentialHandler.GetAccessLog)
		})
	})

	a.router = r
}

func parseHTTPLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
