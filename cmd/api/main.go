// Package main is the entry point for the codetutor API server.
//
// It loads the configuration, connects the backing stores, builds the HTTP
// server with the core chassis (middleware, routing, health checks) and
// serves it either as a plain HTTP listener or, inside AWS Lambda, behind
// the API Gateway proxy adapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"codetutor/internal/analysis"
	"codetutor/internal/api/handlers"
	"codetutor/internal/auth"
	"codetutor/internal/billing"
	"codetutor/internal/config"
	"codetutor/internal/core"
	"codetutor/internal/db"
	"codetutor/internal/external"
	"codetutor/internal/metrics"
	"codetutor/internal/quota"
	"codetutor/internal/ratelimit"
)

const cloudWatchFlushInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM pointers are resolved outside APP_ENV=local. The provider creates
	// its AWS client lazily, so local runs never touch AWS.
	provider := config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("codetutor API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every dependency of the API onto a core.Server. Routes
// are not mounted yet. Resources opened here are released by srv.Shutdown.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	policies, err := planPolicies(cfg)
	if err != nil {
		return nil, err
	}

	// Stores
	var profiles *db.ProfileRepository
	var analyses analysis.Repository
	var usageStore quota.Store

	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), db.PoolOptions{
			MaxConns:          int32(cfg.Database.MaxConns),
			MinConns:          int32(cfg.Database.MinConns),
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		srv.HealthProbes = append(srv.HealthProbes, core.HealthProbe{Name: "postgres", Check: pool.Ping})
		srv.Closers = append(srv.Closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		profiles = db.NewProfileRepository(pool)
		analyses = db.NewAnalysisRepository(pool)
		usageStore = db.NewUsageStore(pool)
	}

	var rdb *redis.Client
	if cfg.Redis.URL.IsSet() {
		rdb, err = newRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		srv.HealthProbes = append(srv.HealthProbes, core.HealthProbe{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		srv.Closers = append(srv.Closers, func(context.Context) error { return rdb.Close() })
	}

	switch {
	case usageStore != nil:
	case rdb != nil:
		usageStore = quota.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	default:
		logger.Warn("no DATABASE_URL or REDIS_URL; usage counters are kept in memory and reset on restart")
		usageStore = quota.NewMemoryStore()
	}

	var limitStore ratelimit.Store
	if rdb != nil {
		limitStore = ratelimit.NewFallbackStore(
			ratelimit.NewRedisStore(rdb, cfg.Redis.KeyPrefix),
			ratelimit.NewMemoryStore(time.Now),
			cfg.Redis.BreakerCooldown,
			logger,
		)
	} else {
		logger.Warn("no REDIS_URL; rate limits are enforced per instance")
		limitStore = ratelimit.NewMemoryStore(time.Now)
	}

	limiters, err := ratelimit.NewSet(ratelimit.DefaultConfigs(), limitStore, cfg.Limits.StoreTimeout)
	if err != nil {
		return nil, fmt.Errorf("building rate limiters: %w", err)
	}
	for name := range ratelimit.DefaultConfigs() {
		srv.Limiters[name] = limiters.Get(name)
	}

	srv.Quota = quota.NewEnforcer(policies, usageStore, cfg.Limits.StoreTimeout, logger)
	srv.Usage = quota.NewRecorder(usageStore, cfg.Limits.StoreTimeout, logger)
	reporter := quota.NewReporter(policies, usageStore, cfg.Limits.StoreTimeout)

	// Metrics
	if err := wireMetrics(ctx, srv, cfg, logger); err != nil {
		return nil, err
	}

	// Auth
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("configuring token verification: %w", err)
	}
	var profileSource auth.ProfileSource
	var profileStore handlers.ProfileStore
	var profileReader handlers.ProfileReader
	if profiles != nil {
		profileSource, profileStore, profileReader = profiles, profiles, profiles
	}
	srv.Authenticator = auth.NewAuthenticator(verifier, profileSource, logger)

	// Upstreams
	supabase := external.NewSupabaseAuthClient(&http.Client{Timeout: 10 * time.Second}, external.SupabaseAuthConfig{
		URL:              cfg.Auth.SupabaseURL,
		AnonKey:          cfg.Auth.SupabaseAnonKey,
		RecoveryRedirect: cfg.Auth.RecoveryRedirect(),
		Logger:           logger,
	})
	anthropic := external.NewAnthropicClient(&http.Client{Timeout: cfg.Anthropic.Timeout}, external.AnthropicClientConfig{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
		Logger:  logger,
	})
	analyzer := analysis.NewService(anthropic, analyses, cfg.Anthropic.MaxTokens, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(supabase, profileStore, srv.Validator, logger)
	analyzeHandler := handlers.NewAnalyzeHandler(analyzer, srv.Validator, logger)
	usageHandler := handlers.NewUsageHandler(reporter, profileReader, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { authHandler.RegisterRoutes(r, srv) },
		func(r chi.Router) { analyzeHandler.RegisterRoutes(r, srv) },
		func(r chi.Router) { usageHandler.RegisterRoutes(r, srv) },
	)
	if profiles != nil {
		adminHandler := handlers.NewAdminHandler(profiles, srv.Validator, logger)
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) { adminHandler.RegisterRoutes(r, srv) })
	} else {
		logger.Warn("no DATABASE_URL; admin account review endpoints are disabled")
	}

	return srv, nil
}

// planPolicies returns the built-in plan table unless PLAN_POLICIES_JSON
// replaces it.
func planPolicies(cfg *config.Config) (billing.PolicyResolver, error) {
	if cfg.Limits.PlanPoliciesJSON == "" {
		return billing.NewStaticPolicyResolver(), nil
	}
	p, err := billing.ParsePolicies([]byte(cfg.Limits.PlanPoliciesJSON))
	if err != nil {
		return nil, &config.ConfigError{
			Type:    config.ErrValidation,
			Message: "invalid PLAN_POLICIES_JSON",
			Err:     err,
		}
	}
	return p, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
		opts.WriteTimeout = cfg.ReadTimeout
	}
	return redis.NewClient(opts), nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		return auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Audience)
	}
	return auth.NewHS256Verifier(cfg.JWTSecret, cfg.Audience)
}

// wireMetrics installs the configured backend. CloudWatch publishes from a
// background loop that is flushed on shutdown.
func wireMetrics(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.Observability.MetricsBackend {
	case "prometheus":
		p := metrics.NewPrometheus(cfg.Observability.MetricNamespace)
		srv.Metrics = p
		srv.MetricsHandler = p.Handler()
	case "cloudwatch":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config for CloudWatch: %w", err)
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		cw := metrics.NewCloudWatch(client, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = cw

		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			cw.Run(runCtx, cloudWatchFlushInterval)
		}()
		srv.Closers = append(srv.Closers, func(shutdownCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-shutdownCtx.Done():
				return shutdownCtx.Err()
			}
		})
	default:
		srv.Metrics = metrics.Nop{}
	}
	return nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves API Gateway proxy events through the same router.
// lambda.Start never returns.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	adapter := httpadapter.New(srv.Handler())
	logger.Info("running in Lambda mode")
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// WriteTimeout leaves room past the request deadline for the error
	// response of a timed-out model call.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool, Redis, metrics flush).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
