package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/VictorLirio/nimbus-api/internal/config"
	"github.com/VictorLirio/nimbus-api/internal/handlers/subscription"
	"github.com/VictorLirio/nimbus-api/pkg/middleware"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Database.Driver),
	)

	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	deps, err := initDependencies(context.Background(), cfg, sm, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", zap.Error(err))
		sm.Shutdown()
		os.Exit(1)
	}

	if cfg.Cron.SweepInterval > 0 {
		worker := shutdown.NewPeriodicWorker("orphan-sweep", cfg.Cron.SweepInterval, logger)
		worker.Start(func(ctx context.Context) { runOrphanSweep(ctx, deps, cfg, logger) })
		sm.Register("orphan-sweep", worker.Stop)
	}

	// Metrics and dependency health on their own port
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), deps.health, logger)
	sm.Register("metrics-server", metricsServer.Shutdown)

	// gRPC: health and reflection for probes and tooling
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			observability.UnaryServerInterceptor(),
			loggingInterceptor(logger),
			recoveryInterceptor(logger),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Int("port", cfg.Server.GRPCPort), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC server listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	sm.Register("grpc-server", func(ctx context.Context) error {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			grpcServer.Stop()
			return ctx.Err()
		}
	})

	httpServer, rateLimiter, err := newHTTPServer(cfg, deps)
	if err != nil {
		logger.Fatal("Failed to register HTTP routes", zap.Error(err))
	}
	sm.RegisterFunc("rate-limiter", rateLimiter.Shutdown)
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	sm.Register("http-server", httpServer.Shutdown)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	sm.WaitForSignal(context.Background())
	logger.Info("Shutting down servers...")
	if failed := sm.Shutdown(); len(failed) > 0 {
		os.Exit(1)
	}
	logger.Info("Servers stopped")
}

// newHTTPServer mounts the REST API on a grpc-gateway mux next to the
// provider webhook, cron jobs and probes.
func newHTTPServer(cfg *config.Config, deps *Dependencies) (*http.Server, *middleware.RateLimiter, error) {
	gwMux := runtime.NewServeMux()
	if err := deps.subscriptionHandler.Register(gwMux); err != nil {
		return nil, nil, err
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst,
		middleware.HeaderOrIP(subscription.UserIDHeader))
	headers := middleware.NewSecurityHeaders(!cfg.IsProduction())
	timeout := middleware.Timeout(deps.timeouts)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", observability.InstrumentHandler("api",
		middleware.Chain(gwMux, headers.Middleware, rateLimiter.Middleware, timeout)))
	httpMux.Handle("/webhooks/stripe", observability.InstrumentHandler("webhook_stripe",
		middleware.Chain(deps.stripeHandler, timeout)))
	deps.jobsHandler.Register(httpMux)

	httpMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	httpMux.HandleFunc("/ready", deps.health.HealthHandler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server, rateLimiter, nil
}

func runOrphanSweep(ctx context.Context, deps *Dependencies, cfg *config.Config, logger *zap.Logger) {
	ctx, cancel := deps.timeouts.CronContext(ctx)
	defer cancel()

	report, err := deps.service.SweepOrphans(ctx, cfg.Cron.SweepLookback)
	if err != nil {
		logger.Error("Scheduled orphan sweep failed", zap.Error(err))
		return
	}
	logger.Info("Scheduled orphan sweep completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("orphaned", len(report.Orphaned)))
}

// initLogger builds the production JSON logger or a development console one
func initLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Logger.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.IsProduction() && !cfg.Logger.Development {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			logger.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			logger.Debug("gRPC request",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
			)
		}
		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
				)
				err = fmt.Errorf("internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
