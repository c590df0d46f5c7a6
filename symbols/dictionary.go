// Package symbols interns index names into small integers stored in the
// Symbol table. Ids never change once assigned, so resolved names are cached
// for the life of the process until Reset.
package symbols

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

var Lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "symbols",
	Name:      "lookups",
}, []string{"result"})

var Created = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "symbols",
	Name:      "created",
})

type Dictionary struct {
	db    *sql.DB
	d     dialect.Dialect
	log   utils.Logger
	cache atomic.Pointer[xsync.MapOf[string, int]]
}

func New(db *sql.DB, d dialect.Dialect, log utils.Logger) *Dictionary {
	dict := &Dictionary{db: db, d: d, log: log}
	dict.cache.Store(xsync.NewMapOf[string, int]())
	return dict
}

// Reset forgets every cached id.
func (dict *Dictionary) Reset() {
	dict.cache.Store(xsync.NewMapOf[string, int]())
}

// Cached never touches the database.
func (dict *Dictionary) Cached(name string) (int, bool) {
	return dict.cache.Load().Load(name)
}

// Resolve finds the id of name without creating it.
func (dict *Dictionary) Resolve(ctx context.Context, name string) (int, bool, error) {
	return dict.ResolveIn(ctx, dict.db, name)
}

// ResolveIn is Resolve reading through q, e.g. an open transaction.
func (dict *Dictionary) ResolveIn(ctx context.Context, q host.Querier, name string) (int, bool, error) {
	if id, ok := dict.Cached(name); ok {
		Lookups.WithLabelValues("cached").Inc()
		return id, true, nil
	}
	id, ok, err := dict.lookup(ctx, q, name)
	if err != nil || !ok {
		Lookups.WithLabelValues("absent").Inc()
		return 0, false, err
	}
	Lookups.WithLabelValues("read").Inc()
	dict.cache.Load().Store(name, id)
	return id, true, nil
}

// ResolveOrCreate finds or creates the id of name. It is safe against
// concurrent creators in other processes: the insert is conditional, its
// outcome is ignored, and the id is always re-read from the table.
func (dict *Dictionary) ResolveOrCreate(ctx context.Context, name string) (int, error) {
	id, ok, err := dict.ResolveIn(ctx, dict.db, name)
	if err != nil || ok {
		return id, err
	}
	if err := dict.insertIfAbsent(ctx, name); err != nil {
		dict.log.DebugCtx(ctx, "symbol insert lost a race or failed", "symbol", name, "err", err)
	}
	id, ok, err = dict.lookup(ctx, dict.db, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &recdb_errors.SQLError{SQL: selectSymbol, Err: errors.New("symbol vanished after insert: " + name)}
	}
	dict.cache.Load().Store(name, id)
	return id, nil
}

const selectSymbol = "SELECT symbolId FROM Symbol WHERE value = "

func (dict *Dictionary) lookup(ctx context.Context, q host.Querier, name string) (int, bool, error) {
	var id int
	err := q.QueryRowContext(ctx, selectSymbol+dict.d.Bind(1, dialect.TextColumn), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, dict.convert(selectSymbol, err)
	}
	return id, true, nil
}

func (dict *Dictionary) insertIfAbsent(ctx context.Context, name string) error {
	stmt := "INSERT INTO Symbol (value) SELECT " + dict.d.Bind(1, dialect.TextColumn) +
		" WHERE NOT EXISTS (SELECT 1 FROM Symbol WHERE value = " + dict.d.Bind(2, dialect.TextColumn) + ")"
	res, err := dict.db.ExecContext(ctx, stmt, name, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		Created.Inc()
	}
	return nil
}

func (dict *Dictionary) convert(stmt string, err error) error {
	if dict.d.IsConnectionError(err) {
		return &recdb_errors.ConnectionError{Err: err}
	}
	return &recdb_errors.SQLError{SQL: stmt, Err: err}
}
