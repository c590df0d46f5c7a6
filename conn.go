package recdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/recdb_errors"
)

func (db *DB) isConnectionError(err error) bool {
	var ce *recdb_errors.ConnectionError
	return errors.As(err, &ce) || errors.Is(err, driver.ErrBadConn) || db.opts.Dialect.IsConnectionError(err)
}

// convert classifies a driver error. Errors already classified pass through.
func (db *DB) convert(stmt string, err error, read bool) error {
	if err == nil {
		return nil
	}
	var (
		ce *recdb_errors.ConnectionError
		rt *recdb_errors.ReadTimeout
		se *recdb_errors.SQLError
	)
	if errors.As(err, &ce) || errors.As(err, &rt) || errors.As(err, &se) {
		return err
	}
	switch {
	case read && db.opts.Dialect.IsTimeout(err):
		return &recdb_errors.ReadTimeout{SQL: stmt, Err: err}
	case db.isConnectionError(err):
		return &recdb_errors.ConnectionError{Err: err}
	}
	return &recdb_errors.SQLError{SQL: stmt, Err: err}
}

func (db *DB) logStatement(ctx context.Context, kind, op, stmt string, rows int64, started time.Time) {
	if !db.opts.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	db.opts.Logger.DebugCtx(ctx, kind, "op", op, "sql", stmt, "rows", rows, "duration", time.Since(started))
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry repeats fn while it fails on the connection, up to
// ConnectionRetries attempts in total.
func (db *DB) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !db.isConnectionError(err) {
			return err
		}
		if attempt >= db.opts.ConnectionRetries {
			var ce *recdb_errors.ConnectionError
			if errors.As(err, &ce) {
				return ce
			}
			return &recdb_errors.ConnectionError{Err: err}
		}
		Retries.WithLabelValues(op, "connection").Inc()
		db.opts.Logger.WarnCtx(ctx, "connection failed, retrying", "op", op, "attempt", attempt, "err", err)
		if serr := sleep(ctx, jitter(db.opts.RetryDelay)); serr != nil {
			return &recdb_errors.ConnectionError{Err: errors.Wrap(err, serr.Error())}
		}
	}
}

func (db *DB) execResult(ctx context.Context, q host.Querier, op, stmt string, args ...any) (int64, error) {
	started := time.Now()
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, db.convert(stmt, err, false)
	}
	n, _ := res.RowsAffected()
	db.logStatement(ctx, "exec", op, stmt, n, started)
	return n, nil
}

func (db *DB) exec(ctx context.Context, q host.Querier, op, stmt string, args ...any) error {
	_, err := db.execResult(ctx, q, op, stmt, args...)
	return err
}

// inTx runs fn in a write transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		return db.convert("BEGIN", err, false)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.convert("COMMIT", err, false)
	}
	return nil
}
