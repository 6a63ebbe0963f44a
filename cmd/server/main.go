package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"salesdesk/internal/backend"
	"salesdesk/internal/cache"
	"salesdesk/internal/catalog"
	"salesdesk/internal/config"
	"salesdesk/internal/events"
	"salesdesk/internal/httpapi"
	"salesdesk/internal/logging"
	"salesdesk/internal/receipt"
	"salesdesk/internal/sale"
	"salesdesk/internal/service"
	"salesdesk/internal/store"
	"salesdesk/internal/store/memory"
	pgstore "salesdesk/internal/store/postgres"
	"salesdesk/internal/telemetry"
)

const (
	workspaceIdle  = 30 * time.Minute
	evictorTick    = time.Minute
	metricsPrefix  = "salesdesk"
	natsClientName = "salesdesk-gateway"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		if cfg.IsProduction() {
			logger.Fatal("invalid security configuration", zap.Error(err))
		}
		logger.Warn("weak security configuration, acceptable only outside production", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	archive, closeArchive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
	}
	if closeArchive != nil {
		closers = append(closers, closeArchive)
	}

	snapshotCache, closeCache := buildSnapshotCache(ctx, cfg, logger)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	publisher := buildPublisher(cfg, logger)
	closers = append(closers, publisher.Close)

	client, err := backend.New(cfg.BackendURL, cfg.BackendTimeout(), logger)
	if err != nil {
		logger.Fatal("invalid backend configuration", zap.Error(err))
	}

	metrics := telemetry.New(metricsPrefix)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.ManagerPIN, client)
	loader := catalog.NewLoader(client, snapshotCache, cfg.SnapshotTTL(), logger)
	pipeline := sale.New(sale.Config{
		StoreID: cfg.StoreID,
		Backend: client,
		Loader:  loader,
		Archive: archive,
		Events:  publisher,
		PINs:    auth,
		Metrics: metrics,
		Logger:  logger,
	})
	svc := service.New(service.Config{
		StoreID:  cfg.StoreID,
		Backend:  client,
		Loader:   loader,
		Pipeline: pipeline,
		Exporter: receipt.NewExporter(cfg.StoreName, nil, nil),
		Archive:  archive,
		Events:   publisher,
		Metrics:  metrics,
		Logger:   logger,
	})
	api := httpapi.New(svc, auth, metrics, logger, cfg.AllowedOrigin)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go svc.RunEvictor(runCtx, evictorTick, workspaceIdle)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("salesdesk gateway listening",
			zap.String("addr", cfg.Address()),
			zap.String("backend", cfg.BackendURL),
			zap.String("store", cfg.StoreID),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopRun()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// buildArchive opens postgres when DATABASE_URL is set and applies the
// migrations. Without it receipts and audit entries live in memory.
func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("archive: in-memory")
		return memory.New(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("archive: postgres")
	return pg, pg.Close, nil
}

func buildSnapshotCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.SnapshotCache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("snapshot cache: in-process")
		return cache.NewMemorySnapshotCache(), nil
	}

	redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, snapshot cache disabled", zap.Error(err))
		_ = redisCache.Close()
		return cache.NoopSnapshotCache{}, nil
	}
	logger.Info("snapshot cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, redisCache.Close
}

func buildPublisher(cfg config.Config, logger *zap.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		logger.Info("events: disabled")
		return events.NoopPublisher{}
	}

	publisher, err := events.NewNATSPublisher(cfg.NATSURL, natsClientName, logger)
	if err != nil {
		logger.Warn("nats unavailable, events disabled", zap.Error(err))
		return events.NoopPublisher{}
	}
	logger.Info("events: nats", zap.String("url", cfg.NATSURL))
	return publisher
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "246810": true, "111222": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
