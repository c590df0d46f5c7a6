package recdb

import (
	"context"
	"database/sql"
	"iter"

	"github.com/google/uuid"

	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/query"
)

const defaultFetchSize = 200

// ReadIterable streams the matches of q. Unsorted queries are paged by id,
// fetchSize rows per statement, and hold no connection between pages.
// Sorted queries, or those with DisableByIDIteratorOption, run as a single
// statement on a dedicated connection until the sequence ends or the
// consumer stops.
func (db *DB) ReadIterable(ctx context.Context, q *query.Query, fetchSize int) iter.Seq2[Row, error] {
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	if len(q.Sorters) == 0 && !q.BoolOption(query.DisableByIDIteratorOption) {
		return db.byIDIterator(ctx, q, fetchSize)
	}
	return db.streamIterator(ctx, q)
}

func (db *DB) byIDIterator(ctx context.Context, q *query.Query, fetchSize int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		after := uuid.Nil
		for {
			rows, err := db.readAfter(ctx, q, after, fetchSize)
			if err != nil {
				yield(Row{}, err)
				return
			}
			for _, r := range rows {
				if !yield(r, nil) {
					return
				}
				after = r.ID
			}
			if len(rows) < fetchSize {
				return
			}
		}
	}
}

func (db *DB) readAfter(ctx context.Context, q *query.Query, after uuid.UUID, limit int) ([]Row, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.SelectAfter(ctx, q, after, limit)
	if err != nil {
		return nil, err
	}
	return db.queryRows(ctx, db.querier(q), "iterate", stmt)
}

func (db *DB) streamIterator(ctx context.Context, q *query.Query) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if err := db.check(); err != nil {
			yield(Row{}, err)
			return
		}
		ctx, cancel := db.readContext(ctx, q)
		defer cancel()
		stmt, err := db.compiler.Select(ctx, q, 0, 0)
		if err != nil {
			yield(Row{}, err)
			return
		}
		var qr host.Querier
		if pinned, ok := q.Options[query.ConnectionOption].(host.Querier); ok && pinned != nil {
			qr = pinned
		} else {
			conn, err := db.read.Conn(ctx)
			if err != nil {
				yield(Row{}, db.convert(stmt, err, true))
				return
			}
			defer conn.Close()
			qr = conn
		}
		rows, err := qr.QueryContext(ctx, stmt)
		if err != nil {
			yield(Row{}, db.convert(stmt, err, true))
			return
		}
		defer rows.Close()
		n := 0
		defer func() { ReadRows.WithLabelValues("stream").Add(float64(n)) }()
		for rows.Next() {
			var r Row
			if err := rows.Scan(&r.ID, &r.TypeID, &r.Data); err != nil {
				yield(Row{}, db.convert(stmt, err, true))
				return
			}
			n++
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, db.convert(stmt, err, true))
		}
	}
}

var _ host.Querier = (*sql.Conn)(nil)
