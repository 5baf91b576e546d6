package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pavelzar/paylink/internal/auth"
	"github.com/pavelzar/paylink/internal/config"
	"github.com/pavelzar/paylink/internal/db"
	"github.com/pavelzar/paylink/internal/domain"
	"github.com/pavelzar/paylink/internal/events"
	"github.com/pavelzar/paylink/internal/httpapi"
	"github.com/pavelzar/paylink/internal/memstore"
	"github.com/pavelzar/paylink/internal/metrics"
	"github.com/pavelzar/paylink/internal/ratelimit"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	ctx := context.Background()

	var (
		accounts    domain.AccountStore
		txLog       domain.TransactionLog
		txManager   domain.TxManager
		credentials auth.CredentialStore
	)
	switch cfg.Storage {
	case "memory":
		store := memstore.New()
		accounts, txLog, txManager = store, store, store
		credentials = memstore.NewCredentials()
		logger.Info("using in-memory storage")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to create database pool", zap.Error(err))
		}
		defer pool.Close()
		accounts = db.NewAccountStore(pool.Pool)
		txLog = db.NewTransactionLog(pool.Pool)
		txManager = db.NewTxManager(pool.Pool, logger)
		credentials = db.NewCredentialStore(pool.Pool)
		logger.Info("database connection pool initialized")
	}

	var publisher domain.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		logger.Info("event publisher initialized", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	observer := metrics.NewLedger(registry)

	engine := domain.NewLedgerEngine(accounts, txLog, txManager, publisher, observer, logger)
	gate := auth.NewGate(credentials)
	limiter := ratelimit.New(cfg.TransferRPS, cfg.TransferBurst, 10*time.Minute)

	server := httpapi.NewServer(engine, gate, limiter, registry, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := server.Listen(":" + cfg.Port); err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server exited")
}

// newLogger builds a production JSON logger, or a development console logger
// outside production.
func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
