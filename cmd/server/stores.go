package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	authservice "unionregistry/internal/auth/service"
	authstore "unionregistry/internal/auth/store"
	dealerservice "unionregistry/internal/dealer/service"
	dealerstore "unionregistry/internal/dealer/store"
	"unionregistry/internal/platform/config"
	"unionregistry/internal/platform/redis"
	registryservice "unionregistry/internal/registry/service"
	registrystore "unionregistry/internal/registry/store"
	"unionregistry/internal/storage"
	"unionregistry/internal/storage/memory"
	"unionregistry/internal/storage/postgres"
	transferservice "unionregistry/internal/transfer/service"
	transferstore "unionregistry/internal/transfer/store"
	"unionregistry/pkg/platform/audit"
	auditmemory "unionregistry/pkg/platform/audit/store/memory"
	auditpg "unionregistry/pkg/platform/audit/store/postgres"
)

// backend bundles the transaction runner with every store bound to it.
type backend struct {
	tx        storage.Tx
	registry  registryservice.Store
	transfers transferservice.Store
	dealers   dealerservice.Store
	accounts  authservice.Store
	audit     audit.Store
	// outbox is nil on the in-memory backend.
	outbox *auditpg.Store
	ready  func(ctx context.Context) error
	close  func()
}

// openBackend selects Postgres when DATABASE_URL is set and the in-memory
// store otherwise. A configured Redis fronts dealer lookups in either case.
func openBackend(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backend, error) {
	var (
		b   *backend
		err error
	)
	if cfg.UsesPostgres() {
		b, err = openPostgres(ctx, cfg)
	} else {
		if cfg.IsProduction() {
			logger.Warn("DATABASE_URL not set; registry state is kept in memory and lost on restart")
		}
		b = openMemory(cfg)
	}
	if err != nil {
		return nil, err
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.close()
		return nil, err
	}
	if rc != nil {
		b.dealers = dealerstore.NewCached(b.dealers, rc.Client,
			dealerstore.WithCacheTTL(cfg.Redis.CacheTTL),
			dealerstore.WithCacheLogger(logger),
		)
		closeDB, ready := b.close, b.ready
		b.close = func() {
			_ = rc.Close()
			closeDB()
		}
		b.ready = func(ctx context.Context) error {
			if err := ready(ctx); err != nil {
				return err
			}
			return rc.Health(ctx)
		}
		logger.Info("dealer cache enabled", "ttl", cfg.Redis.CacheTTL)
	}
	return b, nil
}

func openMemory(cfg config.Server) *backend {
	db := memory.New(memory.WithTxTimeout(cfg.TxTimeout))
	return &backend{
		tx:        db,
		registry:  registrystore.NewInMemory(db),
		transfers: transferstore.NewInMemory(db),
		dealers:   dealerstore.NewInMemory(db),
		accounts:  authstore.NewInMemory(db),
		audit:     auditmemory.NewInMemoryStore(db),
		ready:     func(context.Context) error { return nil },
		close:     func() {},
	}
}

func openPostgres(ctx context.Context, cfg config.Server) (*backend, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	outbox := auditpg.New(db)
	return &backend{
		tx:        postgres.NewRunner(db, cfg.TxTimeout),
		registry:  registrystore.NewPostgres(db),
		transfers: transferstore.NewPostgres(db),
		dealers:   dealerstore.NewPostgres(db),
		accounts:  authstore.NewPostgres(db),
		audit:     outbox,
		outbox:    outbox,
		ready:     pingDB(db),
		close:     func() { _ = db.Close() },
	}, nil
}

func pingDB(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
