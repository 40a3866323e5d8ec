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

	"github.com/andreasstove999/agroflow-system/internal/auth"
	"github.com/andreasstove999/agroflow-system/internal/billing"
	"github.com/andreasstove999/agroflow-system/internal/clients"
	"github.com/andreasstove999/agroflow-system/internal/config"
	"github.com/andreasstove999/agroflow-system/internal/db"
	"github.com/andreasstove999/agroflow-system/internal/events"
	httpapi "github.com/andreasstove999/agroflow-system/internal/http"
	"github.com/andreasstove999/agroflow-system/internal/logging"
	"github.com/andreasstove999/agroflow-system/internal/observability"
)

func main() {
	cfg, err := config.LoadBilling()
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
		if err := db.RunMigrations(cfg.DatabaseDSN, db.Billing, logger); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	repo := billing.NewPostgresRepository(pool)

	// --- registry callback ---
	clientCfg := clients.RegistryConfig{
		BaseURL:     cfg.RegistryURL,
		Timeout:     cfg.CallbackTimeout,
		MaxAttempts: cfg.CallbackMaxAttempts,
	}
	if cfg.CallbackSecret != "" {
		clientCfg.Tokens = auth.NewIssuer(cfg.CallbackSecret, cfg.ServiceName, time.Minute)
	}
	registryClient, err := clients.NewRegistryClient(clientCfg, logger)
	if err != nil {
		logger.Fatal("registry client", zap.Error(err))
	}

	// --- AMQP ---
	conn, err := events.Dial(ctx, cfg.RabbitURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq connect", zap.Error(err))
	}
	defer conn.Close()

	consumer, err := events.StartConsumer(ctx, conn, events.ConsumerConfig{
		Queue:        events.BillingQueue,
		Tag:          cfg.ServiceName,
		RequeueDelay: time.Second,
	}, events.HarvestCreatedBillingHandler(repo, registryClient, logger), logger)
	if err != nil {
		logger.Fatal("start consumer", zap.Error(err))
	}

	// --- HTTP ---
	router := httpapi.NewBillingRouter(httpapi.NewBillingHandler(repo, logger))
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
	case <-consumer.Done():
		logger.Error("consumer stopped unexpectedly")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	// let the in-flight delivery settle before the connection closes
	select {
	case <-consumer.Done():
	case <-shutdownCtx.Done():
		logger.Warn("consumer did not stop before shutdown timeout")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
