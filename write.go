package recdb

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/state"
)

// Save writes the records of states and replaces their index rows in one
// transaction. States carrying atomic operations are re-read inside the
// transaction and written with a compare-and-swap on the old bytes.
func (db *DB) Save(ctx context.Context, states ...*state.State) error {
	if len(states) == 0 {
		return nil
	}
	err := db.writeLoop(ctx, "save", states, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range states {
			if err := db.saveRecord(ctx, tx, s); err != nil {
				return err
			}
		}
		if err := db.syncIndexes(ctx, tx, states, nil); err != nil {
			return err
		}
		return db.touch(ctx, tx, states)
	})
	for _, s := range states {
		db.cache.Remove(s.ID)
		if err == nil {
			s.MarkSaved()
		}
	}
	return err
}

// Index rewrites the index rows of states without touching their records.
func (db *DB) Index(ctx context.Context, states ...*state.State) error {
	if len(states) == 0 {
		return nil
	}
	return db.writeLoop(ctx, "index", states, nil, func(ctx context.Context, tx *sql.Tx) error {
		return db.syncIndexes(ctx, tx, states, nil)
	})
}

// Recalculate rewrites only the rows of ix, e.g. after its computed field
// changed.
func (db *DB) Recalculate(ctx context.Context, ix *classes.Index, states ...*state.State) error {
	if len(states) == 0 {
		return nil
	}
	if ix == nil {
		return errors.Wrap(recdb_errors.ErrIllegalArgument, "recalculate without an index")
	}
	return db.writeLoop(ctx, "recalculate", states, ix, func(ctx context.Context, tx *sql.Tx) error {
		return db.syncIndexes(ctx, tx, states, ix)
	})
}

// Delete removes records and their index rows. The update time of each is
// bumped so that pollers of ReadLastUpdate notice.
func (db *DB) Delete(ctx context.Context, states ...*state.State) error {
	if len(states) == 0 {
		return nil
	}
	err := db.writeLoop(ctx, "delete", nil, nil, func(ctx context.Context, tx *sql.Tx) error {
		lookup := db.lookupIn(tx)
		if err := db.indexes.Delete(ctx, tx, states, nil, lookup); err != nil {
			return err
		}
		d := db.opts.Dialect
		ids := make([]any, len(states))
		binds := make([]string, len(states))
		for i, s := range states {
			ids[i] = s.ID.String()
			binds[i] = d.Bind(i+1, dialect.UUIDColumn)
		}
		stmt := "DELETE FROM Record WHERE id IN (" + strings.Join(binds, ", ") + ")"
		if err := db.exec(ctx, tx, "delete", stmt, ids...); err != nil {
			return err
		}
		return db.touch(ctx, tx, states)
	})
	for _, s := range states {
		db.cache.Remove(s.ID)
	}
	return err
}

func (db *DB) lookupIn(q host.Querier) indexes.SymbolLookup {
	return func(ctx context.Context, name string) (int, bool, error) {
		return db.symbols.ResolveIn(ctx, q, name)
	}
}

// writeLoop runs body in a transaction until it commits. Symbols the index
// rows need are created outside the transaction, before it starts and
// whenever body reports some missing. Lost compare-and-swaps and retryable
// driver errors restart the transaction, up to MaxWriteRetries times.
func (db *DB) writeLoop(ctx context.Context, op string, states []*state.State, only *classes.Index, body func(context.Context, *sql.Tx) error) error {
	if err := db.check(); err != nil {
		return err
	}
	ctx = db.ctx(ctx)
	started := time.Now()
	defer func() {
		WriteDuration.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))
	}()
	if len(states) > 0 {
		if err := db.createSymbols(ctx, indexes.Names(db.indexes.Extract(states, only))); err != nil {
			return err
		}
	}
	for retries := 0; ; retries++ {
		err := db.withRetry(ctx, op, func() error {
			return db.inTx(ctx, func(tx *sql.Tx) error { return body(ctx, tx) })
		})
		var missing *recdb_errors.MissingSymbolsError
		reason := ""
		switch {
		case err == nil:
			return nil
		case errors.As(err, &missing):
			if cerr := db.createSymbols(ctx, missing.Names); cerr != nil {
				return cerr
			}
			reason = "symbols"
		case errors.Is(err, recdb_errors.ErrConcurrentUpdate):
			reason = "concurrent_update"
		case db.opts.Dialect.IsRetryable(err):
			reason = "retryable"
		default:
			return err
		}
		if retries >= db.opts.MaxWriteRetries {
			return errors.Wrapf(recdb_errors.ErrRetriesExhausted, "%s: %d attempts, last error: %v", op, retries+1, err)
		}
		Retries.WithLabelValues(op, reason).Inc()
		db.opts.Logger.WarnCtx(ctx, "write restarted", "op", op, "reason", reason, "attempt", retries+1)
	}
}

func (db *DB) createSymbols(ctx context.Context, names []string) error {
	for _, name := range names {
		err := db.withRetry(ctx, "symbol", func() error {
			_, err := db.symbols.ResolveOrCreate(ctx, name)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) saveRecord(ctx context.Context, q host.Querier, s *state.State) error {
	if len(s.AtomicOps()) > 0 && !s.IsNew() {
		return db.saveAtomic(ctx, q, s)
	}
	data, err := state.Serialize(s.Values)
	if err != nil {
		return errors.Wrapf(err, "serialize %s", s.ID)
	}
	start := stepUpdate
	if s.IsNew() {
		start = stepInsert
	}
	if err := db.recordWriter(q, s.ID.String(), s.TypeID.String(), data).write(ctx, start); err != nil {
		return err
	}
	s.SetOriginalData(data)
	return nil
}

// saveAtomic applies the queued operations of s to the stored record and
// writes the result only if the record still holds the bytes it was read
// with.
func (db *DB) saveAtomic(ctx context.Context, q host.Querier, s *state.State) error {
	old, found, err := db.readRecord(ctx, q, s.ID)
	if err != nil {
		return err
	}
	if !found {
		data, err := state.Serialize(s.Values)
		if err != nil {
			return errors.Wrapf(err, "serialize %s", s.ID)
		}
		return db.recordWriter(q, s.ID.String(), s.TypeID.String(), data).write(ctx, stepInsert)
	}
	values, err := state.Decode(old.Data)
	if err != nil {
		return errors.Wrapf(err, "decode %s", s.ID)
	}
	for _, op := range s.AtomicOps() {
		if err := op.Apply(values); err != nil {
			return err
		}
	}
	data, err := state.Serialize(values)
	if err != nil {
		return errors.Wrapf(err, "serialize %s", s.ID)
	}
	if db.beforeCAS != nil {
		if err := db.beforeCAS(ctx, q); err != nil {
			return err
		}
	}
	if !bytes.Equal(data, old.Data) || old.TypeID != s.TypeID {
		d := db.opts.Dialect
		stmt := "UPDATE Record SET typeId = " + d.Bind(1, dialect.UUIDColumn) +
			", data = " + d.Bind(2, dialect.BlobColumn) +
			" WHERE id = " + d.Bind(3, dialect.UUIDColumn) +
			" AND typeId = " + d.Bind(4, dialect.UUIDColumn) +
			" AND data = " + d.Bind(5, dialect.BlobColumn)
		n, err := db.execResult(ctx, q, "cas", stmt, s.TypeID.String(), data, s.ID.String(), old.TypeID.String(), old.Data)
		if err != nil {
			return err
		}
		if n == 0 {
			return recdb_errors.ErrConcurrentUpdate
		}
	}
	s.Values = values
	s.SetOriginalData(data)
	return nil
}

// syncIndexes replaces the index rows of states, or only the rows of one
// index when only is set.
func (db *DB) syncIndexes(ctx context.Context, tx *sql.Tx, states []*state.State, only *classes.Index) error {
	extracted := db.indexes.Extract(states, only)
	lookup := db.lookupIn(tx)
	rows, err := db.indexes.Rows(ctx, extracted, lookup)
	if err != nil {
		return err
	}
	touched := make([]*state.State, 0, len(extracted))
	for _, s := range states {
		if _, ok := extracted[s]; ok {
			touched = append(touched, s)
		}
	}
	if err := db.indexes.Delete(ctx, tx, touched, only, lookup); err != nil {
		return err
	}
	return db.indexes.Insert(ctx, tx, rows)
}

// touch records the update time of states.
func (db *DB) touch(ctx context.Context, q host.Querier, states []*state.State) error {
	now := db.nowSeconds(ctx)
	for _, s := range states {
		start := stepUpdate
		if s.IsNew() {
			start = stepInsert
		}
		if err := db.updateWriter(q, s.ID.String(), s.TypeID.String(), now).write(ctx, start); err != nil {
			return err
		}
	}
	return nil
}
