package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trailing-lab/internal/storage"
	chstore "trailing-lab/internal/storage/clickhouse"
	"trailing-lab/internal/storage/memory"
	"trailing-lab/internal/storage/migrations"
	pgstore "trailing-lab/internal/storage/postgres"
)

var (
	errNoPostgres   = errors.New("POSTGRES_DSN (--postgres-dsn) is required")
	errNoClickhouse = errors.New("CLICKHOUSE_DSN (--clickhouse-dsn) is required")
)

// priceStore is the price sample store of a command and the label used
// for its query metrics.
type priceStore struct {
	storage.PriceSampleStore
	database string
	close    func()
}

// openPriceStore connects to ClickHouse when a DSN is configured and
// applies migrations. Without a DSN it returns an empty in-memory store,
// unless required is set.
func openPriceStore(ctx context.Context, dsn string, required bool, log *zap.Logger) (*priceStore, error) {
	if dsn == "" {
		if required {
			return nil, errNoClickhouse
		}
		log.Debug("no clickhouse dsn, using in-memory price store")
		return &priceStore{
			PriceSampleStore: memory.NewPriceSampleStore(),
			database:         "memory",
			close:            func() {},
		}, nil
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "default")
	if err != nil {
		return nil, err
	}
	dbName, err := migrations.EnsureClickhouseDatabase(ctx, admin, dsn)
	admin.Close()
	if err != nil {
		return nil, err
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	log.Info("connected to clickhouse", zap.String("database", dbName))

	return &priceStore{
		PriceSampleStore: chstore.NewPriceSampleStore(conn),
		database:         "clickhouse",
		close:            func() { conn.Close() },
	}, nil
}

// openRunStore connects to PostgreSQL and applies migrations.
func openRunStore(ctx context.Context, dsn string, log *zap.Logger) (storage.RunStore, func(), error) {
	if dsn == "" {
		return nil, nil, errNoPostgres
	}
	pool, err := pgstore.NewPool(ctx, dsn, pgstore.WithConnectTimeout(10*time.Second))
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	log.Info("connected to postgres")
	return pgstore.NewRunStore(pool), pool.Close, nil
}
