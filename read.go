package recdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/state"
)

// Row is a stored record as read, still serialized.
type Row struct {
	ID     uuid.UUID
	TypeID uuid.UUID
	Data   []byte
}

// State decodes the record. The raw bytes are kept as its original data.
func (r Row) State() (*state.State, error) {
	values, err := state.Decode(r.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", r.ID)
	}
	s := state.Existing(r.ID, r.TypeID, values)
	s.SetOriginalData(r.Data)
	return s, nil
}

func (db *DB) querier(q *query.Query) host.Querier {
	if c, ok := q.Options[query.ConnectionOption].(host.Querier); ok && c != nil {
		return c
	}
	return db.read
}

func (db *DB) readContext(ctx context.Context, q *query.Query) (context.Context, context.CancelFunc) {
	ctx = db.ctx(ctx)
	timeout := q.Timeout
	if timeout == 0 {
		timeout = db.opts.ReadTimeout
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.TypeID, &r.Data); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryRows runs a statement selecting (id, typeId, data).
func (db *DB) queryRows(ctx context.Context, qr host.Querier, op, stmt string) ([]Row, error) {
	started := time.Now()
	defer func() {
		ReadDuration.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))
	}()
	var out []Row
	err := db.withRetry(ctx, op, func() error {
		rows, err := qr.QueryContext(ctx, stmt)
		if err != nil {
			return db.convert(stmt, err, true)
		}
		defer rows.Close()
		out, err = scanRows(rows)
		return db.convert(stmt, err, true)
	})
	if err != nil {
		return nil, err
	}
	ReadRows.WithLabelValues(op).Add(float64(len(out)))
	db.logStatement(ctx, "read", op, stmt, int64(len(out)), started)
	return out, nil
}

func (db *DB) queryScalar(ctx context.Context, qr host.Querier, op, stmt string, dest any) error {
	started := time.Now()
	defer func() {
		ReadDuration.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))
	}()
	return db.withRetry(ctx, op, func() error {
		return db.convert(stmt, qr.QueryRowContext(ctx, stmt).Scan(dest), true)
	})
}

// ReadAll returns every record matching q in sorter order.
func (db *DB) ReadAll(ctx context.Context, q *query.Query) ([]Row, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.Select(ctx, q, 0, 0)
	if err != nil {
		return nil, err
	}
	return db.queryRows(ctx, db.querier(q), "all", stmt)
}

// ReadStates is ReadAll decoded. Original data is kept only when q sets
// ReturnOriginalDataOption.
func (db *DB) ReadStates(ctx context.Context, q *query.Query) ([]*state.State, error) {
	rows, err := db.ReadAll(ctx, q)
	if err != nil {
		return nil, err
	}
	keep := q.BoolOption(query.ReturnOriginalDataOption)
	out := make([]*state.State, 0, len(rows))
	for _, r := range rows {
		s, err := r.State()
		if err != nil {
			return nil, err
		}
		if !keep {
			s.SetOriginalData(nil)
		}
		out = append(out, s)
	}
	return out, nil
}

func (db *DB) ReadFirst(ctx context.Context, q *query.Query) (Row, bool, error) {
	if err := db.check(); err != nil {
		return Row{}, false, err
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.Select(ctx, q, 0, 1)
	if err != nil {
		return Row{}, false, err
	}
	rows, err := db.queryRows(ctx, db.querier(q), "first", stmt)
	if err != nil || len(rows) == 0 {
		return Row{}, false, err
	}
	return rows[0], true, nil
}

func (db *DB) ReadCount(ctx context.Context, q *query.Query) (int64, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.queryScalar(ctx, db.querier(q), "count", stmt, &n)
	return n, err
}

// ReadLastUpdate is the latest save or delete time among the records q
// selects, zero when there is none.
func (db *DB) ReadLastUpdate(ctx context.Context, q *query.Query) (time.Time, error) {
	if err := db.check(); err != nil {
		return time.Time{}, err
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.LastUpdate(ctx, q)
	if err != nil {
		return time.Time{}, err
	}
	var seconds sql.NullFloat64
	if err := db.queryScalar(ctx, db.querier(q), "last_update", stmt, &seconds); err != nil || !seconds.Valid {
		return time.Time{}, err
	}
	return time.UnixMicro(int64(seconds.Float64 * 1e6)), nil
}

// ReadByID reads one record through the record cache. Writes through this
// DB evict the records they touch.
func (db *DB) ReadByID(ctx context.Context, id uuid.UUID) (Row, bool, error) {
	if err := db.check(); err != nil {
		return Row{}, false, err
	}
	if r, ok := db.cache.Get(id); ok {
		RecordCache.WithLabelValues("hit").Inc()
		return r, true, nil
	}
	RecordCache.WithLabelValues("miss").Inc()
	ctx, cancel := db.readContext(ctx, &query.Query{})
	defer cancel()
	r, ok, err := db.readRecord(ctx, db.read, id)
	if err == nil && ok {
		db.cache.Add(id, r)
	}
	return r, ok, err
}

// readRecord reads a record through q, bypassing the cache.
func (db *DB) readRecord(ctx context.Context, q host.Querier, id uuid.UUID) (Row, bool, error) {
	stmt := "SELECT r.id, r.typeId, r.data FROM Record r WHERE r.id = " + db.opts.Dialect.Bind(1, dialect.UUIDColumn)
	rows, err := q.QueryContext(ctx, stmt, id.String())
	if err != nil {
		return Row{}, false, db.convert(stmt, err, true)
	}
	defer rows.Close()
	list, err := scanRows(rows)
	if err != nil {
		return Row{}, false, db.convert(stmt, err, true)
	}
	if len(list) == 0 {
		return Row{}, false, nil
	}
	return list[0], true, nil
}

// Page is one slice of a result. The total count is computed on first use.
type Page struct {
	Offset int
	Limit  int
	Items  []Row

	hasNext bool
	count   func() (int64, error)
	total   *int64
}

func (p *Page) HasNext() bool     { return p.hasNext }
func (p *Page) HasPrevious() bool { return p.Offset > 0 }
func (p *Page) NextOffset() int   { return p.Offset + p.Limit }

func (p *Page) Count() (int64, error) {
	if p.total != nil {
		return *p.total, nil
	}
	var n int64
	if !p.hasNext {
		n = int64(p.Offset + len(p.Items))
	} else {
		var err error
		if n, err = p.count(); err != nil {
			return 0, err
		}
	}
	p.total = &n
	return n, nil
}

// ReadPartial reads limit records from offset. One extra row is fetched to
// tell whether another page follows.
func (db *DB) ReadPartial(ctx context.Context, q *query.Query, offset, limit int) (*Page, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.Wrapf(recdb_errors.ErrIllegalArgument, "limit %d", limit)
	}
	rctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.Select(rctx, q, offset, limit+1)
	if err != nil {
		return nil, err
	}
	rows, err := db.queryRows(rctx, db.querier(q), "partial", stmt)
	if err != nil {
		return nil, err
	}
	p := &Page{Offset: offset, Limit: limit, Items: rows}
	if len(rows) > limit {
		p.Items = rows[:limit]
		p.hasNext = true
	}
	p.count = func() (int64, error) { return db.ReadCount(ctx, q) }
	return p, nil
}

// Group is one combination of group field values and its record count.
type Group struct {
	Keys  []any
	Count int64
}

type GroupedPage struct {
	Offset int
	Limit  int
	Items  []Group

	hasNext bool
}

func (p *GroupedPage) HasNext() bool { return p.hasNext }

// ReadPartialGrouped counts the records of q per distinct combination of
// fields, ordered by the field values unless q sorts by one of them.
func (db *DB) ReadPartialGrouped(ctx context.Context, q *query.Query, fields []string, offset, limit int) (*GroupedPage, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.Wrapf(recdb_errors.ErrIllegalArgument, "limit %d", limit)
	}
	ctx, cancel := db.readContext(ctx, q)
	defer cancel()
	stmt, err := db.compiler.Group(ctx, q, fields, offset, limit+1)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	var groups []Group
	err = db.withRetry(ctx, "grouped", func() error {
		rows, err := db.querier(q).QueryContext(ctx, stmt)
		if err != nil {
			return db.convert(stmt, err, true)
		}
		defer rows.Close()
		groups = groups[:0]
		for rows.Next() {
			g := Group{Keys: make([]any, len(fields))}
			dest := make([]any, len(fields)+1)
			dest[0] = &g.Count
			for i := range fields {
				dest[i+1] = &g.Keys[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return db.convert(stmt, err, true)
			}
			for i, k := range g.Keys {
				if b, ok := k.([]byte); ok {
					g.Keys[i] = string(b)
				}
			}
			groups = append(groups, g)
		}
		return db.convert(stmt, rows.Err(), true)
	})
	ReadDuration.WithLabelValues("grouped").Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return nil, err
	}
	p := &GroupedPage{Offset: offset, Limit: limit, Items: groups}
	if len(groups) > limit {
		p.Items = groups[:limit]
		p.hasNext = true
	}
	return p, nil
}
