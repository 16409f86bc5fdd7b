// Package app boots the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vitalscope/vitalscope-business/internal/config"
	"github.com/vitalscope/vitalscope-business/internal/db"
	"github.com/vitalscope/vitalscope-business/internal/entitlement"
	internalhttp "github.com/vitalscope/vitalscope-business/internal/http"
	"github.com/vitalscope/vitalscope-business/internal/ledger"
	"github.com/vitalscope/vitalscope-business/internal/logging"
	"github.com/vitalscope/vitalscope-business/internal/reconcile"
	"github.com/vitalscope/vitalscope-business/internal/retention"
	"github.com/vitalscope/vitalscope-business/internal/settings"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
	"github.com/vitalscope/vitalscope-business/internal/util"
	"github.com/vitalscope/vitalscope-business/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolvePath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the entitlement service and blocks until ctx ends or the
// listener fails.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolvePath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSettings := settings.Refresh(ctx, conn); errSettings != nil {
		log.WithError(errSettings).Warn("settings refresh failed, using defaults")
	}

	registry := subscription.NewRegistry(conn)

	var providerClient reconcile.Client
	if httpClient := reconcile.NewHTTPClient(cfg.Billing.ProviderURL, cfg.Billing.ProviderAPIKey); httpClient != nil {
		providerClient = httpClient
		log.Infof("reconciling against %s (key %s)", cfg.Billing.ProviderURL, util.HideSecret(cfg.Billing.ProviderAPIKey))
	}
	syncer := reconcile.NewSyncer(registry, providerClient, cfg.Billing.ProviderQPS)

	store, errStore := buildLedgerStore(ctx, cfg, conn)
	if errStore != nil {
		return errStore
	}
	engine := entitlement.NewEngine(syncer, store)

	sweeper := reconcile.NewSweeper(conn, syncer)
	sweeper.Start(ctx)

	pruner := retention.NewPruner(conn)
	if errPruner := pruner.Start(ctx); errPruner != nil {
		return errPruner
	}

	if cfg.Billing.WebhookSecret == "" {
		log.Warn("no webhook secret configured, signature verification is disabled")
	}
	webhookHandler := webhook.NewHandler(conn, registry, cfg.Billing.WebhookSecret, cfg.Production)

	router := internalhttp.BuildRouter(internalhttp.Deps{
		DB:       conn,
		Engine:   engine,
		Registry: registry,
		Syncer:   syncer,
		Webhook:  webhookHandler,
		Auth:     cfg.Auth,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildLedgerStore picks the Redis ledger when configured, otherwise the
// database-backed one.
func buildLedgerStore(ctx context.Context, cfg *config.Config, conn *gorm.DB) (ledger.Store, error) {
	if cfg.Redis.Addr == "" {
		return ledger.NewGormStore(conn), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		return nil, fmt.Errorf("redis ping: %w", errPing)
	}
	log.Infof("usage ledger backed by redis at %s", cfg.Redis.Addr)
	return ledger.NewRedisStore(client), nil
}
