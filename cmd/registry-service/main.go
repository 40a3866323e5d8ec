package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/andreasstove999/agroflow-system/internal/auth"
	"github.com/andreasstove999/agroflow-system/internal/config"
	"github.com/andreasstove999/agroflow-system/internal/db"
	"github.com/andreasstove999/agroflow-system/internal/events"
	httpapi "github.com/andreasstove999/agroflow-system/internal/http"
	"github.com/andreasstove999/agroflow-system/internal/logging"
	"github.com/andreasstove999/agroflow-system/internal/observability"
	"github.com/andreasstove999/agroflow-system/internal/registry"
)

func main() {
	cfg, err := config.LoadRegistry()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// --- DB ---
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, db.Registry, logger); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	repo := registry.NewPostgresRepository(pool)

	// --- AMQP ---
	conn, err := events.Dial(ctx, cfg.RabbitURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq connect", zap.Error(err))
	}
	defer conn.Close()

	publisher, err := events.NewPublisher(conn, cfg.ServiceName)
	if err != nil {
		logger.Fatal("create publisher", zap.Error(err))
	}
	defer publisher.Close()

	svc := registry.NewService(repo, publisher, logger)

	relay := registry.NewOutboxRelay(repo, publisher, registry.RelayConfig{
		Interval: cfg.OutboxInterval,
		Grace:    cfg.OutboxGrace,
		Batch:    cfg.OutboxBatch,
	}, logger)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	// --- HTTP ---
	opts := httpapi.RegistryRouterOptions{
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}
	if cfg.CallbackSecret != "" {
		opts.Verifier = auth.NewVerifier(cfg.CallbackSecret, auth.RegistryAudience)
	} else {
		logger.Warn("CALLBACK_SECRET not set, status callback is unauthenticated")
	}
	router := httpapi.NewRegistryRouter(httpapi.NewRegistryHandler(svc, logger), opts)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-relayDone

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
