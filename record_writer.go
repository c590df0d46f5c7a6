package recdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/recdb_errors"
)

type writeStep uint8

const (
	stepInsert writeStep = iota
	stepUpdate
)

func (s writeStep) String() string {
	if s == stepInsert {
		return "insert"
	}
	return "update"
}

// rowWriter writes one row keyed by id with a conditional insert and a
// plain update. Starting from either, it switches to the other when no row
// was affected. Each direction may be entered at most once more; beyond
// that the row keeps appearing and vanishing and the write fails.
type rowWriter struct {
	db *DB
	q  host.Querier

	insert     string
	insertArgs []any
	update     string
	updateArgs []any
}

func (w *rowWriter) write(ctx context.Context, start writeStep) error {
	step := start
	flips := map[writeStep]int{}
	for {
		stmt, args := w.update, w.updateArgs
		if step == stepInsert {
			stmt, args = w.insert, w.insertArgs
		}
		n, err := w.db.execResult(ctx, w.q, step.String(), stmt, args...)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		next := stepInsert
		if step == stepInsert {
			next = stepUpdate
		}
		flips[next]++
		if flips[next] > 1 {
			return errors.Wrapf(recdb_errors.ErrWriteOscillation, "%s after %d flips", stmt, flips[stepInsert]+flips[stepUpdate])
		}
		step = next
	}
}

func (db *DB) recordWriter(q host.Querier, id, typeID string, data []byte) *rowWriter {
	d := db.opts.Dialect
	return &rowWriter{
		db: db,
		q:  q,
		insert: "INSERT INTO Record (id, typeId, data) SELECT " +
			dialect.Placeholders(d, 1, dialect.UUIDColumn, dialect.UUIDColumn, dialect.BlobColumn) +
			" WHERE NOT EXISTS (SELECT 1 FROM Record WHERE id = " + d.Bind(4, dialect.UUIDColumn) + ")",
		insertArgs: []any{id, typeID, data, id},
		update: "UPDATE Record SET typeId = " + d.Bind(1, dialect.UUIDColumn) +
			", data = " + d.Bind(2, dialect.BlobColumn) +
			" WHERE id = " + d.Bind(3, dialect.UUIDColumn),
		updateArgs: []any{typeID, data, id},
	}
}

func (db *DB) updateWriter(q host.Querier, id, typeID string, at float64) *rowWriter {
	d := db.opts.Dialect
	return &rowWriter{
		db: db,
		q:  q,
		insert: "INSERT INTO RecordUpdate (id, typeId, updateDate) SELECT " +
			dialect.Placeholders(d, 1, dialect.UUIDColumn, dialect.UUIDColumn, dialect.DoubleColumn) +
			" WHERE NOT EXISTS (SELECT 1 FROM RecordUpdate WHERE id = " + d.Bind(4, dialect.UUIDColumn) + ")",
		insertArgs: []any{id, typeID, at, id},
		update: "UPDATE RecordUpdate SET typeId = " + d.Bind(1, dialect.UUIDColumn) +
			", updateDate = " + d.Bind(2, dialect.DoubleColumn) +
			" WHERE id = " + d.Bind(3, dialect.UUIDColumn),
		updateArgs: []any{typeID, at, id},
	}
}
