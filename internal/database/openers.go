// Package database opens the backend connections the transaction
// coordinators run on. The openers only configure pooling and isolation;
// which coordinator drives a handle is the caller's choice.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewCockroachDB opens a CockroachDB handle through the Postgres driver.
// CockroachDB runs every transaction at serializable isolation, so the gorm
// transaction options are pinned to match.
func NewCockroachDB(dsn string, maxOpen, maxIdle, connMaxLife int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CockroachDB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}

	if maxOpen == 0 {
		maxOpen = 50
	}
	if maxIdle == 0 {
		maxIdle = 10
	}
	if connMaxLife == 0 {
		connMaxLife = 3600
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLife) * time.Second)

	db = db.Set("gorm:tx_options", &sql.TxOptions{Isolation: sql.LevelSerializable})

	return db, nil
}

// NewCockroachPool opens the pgx pool the retrying transaction manager runs
// on.
func NewCockroachPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping CockroachDB: %w", err)
	}
	return pool, nil
}

// NewMySQLDB opens a MySQL handle for the XA participant. The driver is
// registered by the embedding application; driverName is typically "mysql".
func NewMySQLDB(driverName, dsn string, maxOpen, maxIdle, connMaxLife int) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL handle: %w", err)
	}

	if maxOpen == 0 {
		maxOpen = 50
	}
	if maxIdle == 0 {
		maxIdle = 10
	}
	if connMaxLife == 0 {
		connMaxLife = 3600
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(connMaxLife) * time.Second)
	db.SetConnMaxIdleTime(15 * time.Minute)

	return db, nil
}
