// Package postgres implements storage.Store against a real Postgres
// database via jackc/pgx/v5, using native pgx rather than a database/sql
// shim so the Coordinator's row-level locks (spec §4.2 step 1) and the
// Ledger's guarded conditional UPDATE (spec §4.1/§4.2 step 4) are plain SQL,
// not an ORM abstraction. The connection-acquire/begin/defer-rollback shape
// is grounded on the teacher's SQLiteStorage.CreateIssue transaction
// pattern (internal/storage/sqlite/queries.go upstream); the retry wrapper
// around serialization failures is new, since SQLite's IMMEDIATE lock gives
// the teacher no equivalent to a Postgres 40001.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Config configures the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Store is a storage.Store backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Open builds a connection pool and verifies connectivity with a ping.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "parse postgres dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.DependencyUnavailable, "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.DependencyUnavailable, "ping postgres")
	}
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// isSerializationFailure reports whether err is a Postgres serialization or
// deadlock SQLSTATE (40001 / 40P01) — the only class of error the
// Coordinator retries (spec §9, SPEC_FULL.md §6 "Retry/backoff").
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// withRetry runs fn, retrying with exponential backoff only on serialization
// failures, up to a handful of attempts.
func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isSerializationFailure(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

// BeginTx opens one READ COMMITTED transaction and does not retry. The
// retry on a serialization SQLSTATE lives in WithRetryTx below, which
// re-runs the whole attempt; see Tx.Commit for where the SQLSTATE
// surfaces.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.DependencyUnavailable, "begin transaction")
	}
	return &Tx{tx: pgxTx, log: s.log}, nil
}

// WithRetryTx runs fn inside a fresh transaction, retrying the entire
// attempt (including commit) on a Postgres serialization failure. This is
// the entry point the Coordinator/Ledger call instead of BeginTx directly
// whenever the operation is safe to retry in full (fn must not have
// externally visible side effects before commit).
func (s *Store) WithRetryTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return withRetry(ctx, func() error {
		tx, err := s.BeginTx(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}

func wrapPgErr(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.New(apperrors.NotFound, notFoundMsg)
	}
	return apperrors.Wrap(err, apperrors.Internal, fmt.Sprintf("postgres: %s", notFoundMsg))
}
