// Package store wraps the indexer's own Postgres connection and the
// upstream ord-indexer data it replays, following the teacher's pattern
// of a thin struct around *sql.DB with explicit schema bootstrap.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/bestinslot-xyz/OPI/internal/config"
)

// Store is the indexer's own writable Postgres connection.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver and verifies
// connectivity with a ping.
func Open(cfg config.DBConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.WithField("database", cfg.Database).Info("connected to indexer database")

	return &Store{db: db}, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginBlock opens the explicit transaction a single block's worth of
// writes is applied through, matching the replay engine's single
// BEGIN...COMMIT-per-block model (§5).
func (s *Store) BeginBlock(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}
