package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "giftrelay/docs"
	"giftrelay/internal/config"
	"giftrelay/internal/db"
	"giftrelay/internal/exchange"
	"giftrelay/internal/gifttask"
	"giftrelay/internal/ledger"
	"giftrelay/internal/logger"
	"giftrelay/internal/reclaimer"
	"giftrelay/internal/server"
	"giftrelay/internal/signature"
)

// @title GiftRelay API
// @version 1.0
// @description Coin ledger and signed task queue for gift deliveries.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting GiftRelay")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Fatalf("Failed to set log level: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	catalog, err := exchange.LoadCatalog(cfg.GiftCatalogPath)
	if err != nil {
		logger.Fatalf("Failed to load gift catalog: %v", err)
	}
	logger.Info("Gift catalog loaded", "path", cfg.GiftCatalogPath, "gifts", len(catalog.All()))

	txRunner := db.NewTxRunner(database, cfg.TxMaxRetries)
	ledgerRepo := ledger.NewRepository(database, txRunner)
	taskStore := gifttask.NewRepository(database, txRunner, ledgerRepo)
	exchangeService := exchange.NewService(txRunner, ledgerRepo, taskStore, catalog, cfg.MaxGiftQuantity)

	nonces, closeNonces := newNonceStore(cfg)
	defer closeNonces()

	verifier, err := signature.NewVerifier(signature.Config{
		Secret:    cfg.SigningSecret,
		AgentKeys: cfg.AgentKeys,
		Window:    cfg.SignatureWindow,
		NonceTTL:  cfg.NonceTTL,
	}, nonces)
	if err != nil {
		logger.Fatalf("Failed to create signature verifier: %v", err)
	}

	sweeper := reclaimer.New(taskStore, reclaimer.Config{
		StaleAfter:  cfg.ClaimStaleAfter,
		MaxAttempts: cfg.MaxReclaimAttempts,
		BatchSize:   cfg.ReclaimBatchSize,
		PendingTTL:  cfg.PendingTaskTTL,
		Interval:    cfg.ReclaimInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Start(ctx)
	}()

	srv := server.New(server.Deps{
		Config:    cfg,
		DB:        database,
		Verifier:  verifier,
		Ledger:    ledger.NewHandler(ledgerRepo),
		Exchange:  exchange.NewHandler(exchangeService),
		Tasks:     gifttask.NewHandler(taskStore),
		Worker:    gifttask.NewWorkerHandler(taskStore),
		Reclaimer: reclaimer.NewHandler(sweeper),
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	// the database closes on return; let an in-flight sweep finish first
	select {
	case <-sweeperDone:
	case <-shutdownCtx.Done():
		logger.Warn("Reclaimer did not stop before shutdown deadline")
	}

	logger.Info("Server stopped")
}

// newNonceStore uses Redis when REDIS_ADDR is set so replay protection holds
// across replicas. Without it nonces live in process memory.
func newNonceStore(cfg *config.Config) (signature.NonceStore, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory nonce store")
		return signature.NewMemoryNonceStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	logger.Info("Redis nonce store connected", "addr", cfg.RedisAddr)

	return signature.NewRedisNonceStore(client), func() { _ = client.Close() }
}
