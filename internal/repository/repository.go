// Package repository implements the durable collaborators over Postgres:
// the append-only message store and the read-only social-graph oracle.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	// Registers the postgres driver.
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// BaseRepository provides the shared database handle and logger.
type BaseRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewBaseRepository wraps db.
func NewBaseRepository(db *sql.DB, log *zap.Logger) *BaseRepository {
	return &BaseRepository{db: db, log: log}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *sql.DB {
	return r.db
}

// Open dials Postgres with exponential backoff until the database answers
// a ping or the backoff gives up. Boot ordering with the database is not
// guaranteed in any of our environments.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx)
	err = backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("postgres not ready, retrying", zap.Error(err))
			return err
		}
		return nil
	}, policy)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
