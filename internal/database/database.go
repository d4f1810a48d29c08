// Package database opens the sqlx pool behind the audit store.  The driver
// is go-sql-driver/mysql, which also speaks to MariaDB.
//
// Pool sizes come from `database.max_open` and `database.max_idle`; Open
// uses the built-in sizes for callers that have no configuration.  Every
// pool is pinged before it is handed out so bootstrap fails fast on a bad
// DSN or an unreachable server.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Audit writes are small and infrequent, so the default pool is tiny.
const (
	DefaultMaxOpen = 5
	DefaultMaxIdle = 2

	connLifetime = 30 * time.Minute
	pingTimeout  = 5 * time.Second
)

// Open connects with DefaultMaxOpen and DefaultMaxIdle.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, dsn, DefaultMaxOpen, DefaultMaxIdle)
}

// OpenWithOptions connects with an explicit pool size.  See PoolSize for
// how zero and out-of-range values are treated.
func OpenWithOptions(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := connect(ctx, db, maxOpen, maxIdle); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PoolSize normalises configured pool limits.  A maxOpen of zero or less
// selects DefaultMaxOpen, since database/sql would read it as unlimited.
// maxIdle is clamped to [0, maxOpen]; zero keeps no idle connections.
func PoolSize(maxOpen, maxIdle int) (int, int) {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	return maxOpen, min(max(maxIdle, 0), maxOpen)
}

// connect applies the pool limits to db and pings it.
func connect(ctx context.Context, db *sqlx.DB, maxOpen, maxIdle int) error {
	maxOpen, maxIdle = PoolSize(maxOpen, maxIdle)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping audit db (max_open=%d max_idle=%d): %w", maxOpen, maxIdle, err)
	}
	return nil
}
