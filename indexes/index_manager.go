package indexes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/state"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

var IndexRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "index_manager",
	Name:      "rows",
}, []string{"table", "op"})

var IndexDuplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "index_manager",
	Name:      "duplicates",
}, []string{"table"})

var IndexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "recdb",
	Subsystem: "index_manager",
	Name:      "duration_ms",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"op"})

// rows per multi-row INSERT
const insertChunk = 200

// SymbolLookup returns the id of an index name if it is already known.
type SymbolLookup func(ctx context.Context, name string) (int, bool, error)

// Row is one index row ready to be bound.
type Row struct {
	Table    *Table
	ID       uuid.UUID
	TypeID   uuid.UUID
	SymbolID int
	Value    any
}

type IndexManager struct {
	c      host.Host
	tables *xsync.MapOf[string, *Table]
}

func NewIndexManager(c host.Host) *IndexManager {
	return &IndexManager{c: c, tables: xsync.NewMapOf[string, *Table]()}
}

// TableFor returns the physical table of an index, nil when the index needs
// a spatial table and spatial indexing is off.
func (im *IndexManager) TableFor(ix *classes.Index) *Table {
	key := ix.UniqueName() + "|" + string(ix.Type)
	if t, ok := im.tables.Load(key); ok {
		return t
	}
	t := TableFor(ix.Type)
	if t.Spatial && !im.c.IndexSpatial() {
		t = nil
	}
	im.tables.Store(key, t)
	return t
}

// Tables lists the physical tables in use.
func (im *IndexManager) Tables() []*Table {
	return Tables(im.c.IndexSpatial())
}

// Reset forgets table choices, e.g. after class changes.
func (im *IndexManager) Reset() {
	im.tables.Clear()
}

// Extract runs the extractor over states, skipping those that opted out.
// With only set, values of other indexes and embedded copies are dropped.
func (im *IndexManager) Extract(states []*state.State, only *classes.Index) map[*state.State][]*IndexValue {
	out := make(map[*state.State][]*IndexValue, len(states))
	for _, s := range states {
		if s.SkipIndex {
			continue
		}
		found := Find(im.c.Environment(), s)
		if only != nil {
			kept := found[:0]
			for _, v := range found {
				if v.Index == only && len(v.Prefixes) == 0 {
					kept = append(kept, v)
				}
			}
			found = kept
		}
		out[s] = found
	}
	return out
}

// Names lists the distinct index names the extracted values need symbols
// for.
func Names(extracted map[*state.State][]*IndexValue) []string {
	seen := map[string]bool{}
	var names []string
	for _, values := range extracted {
		for _, v := range values {
			name := v.UniqueName()
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Delete removes index rows of states. With only set it removes just the
// rows of that index symbol.
func (im *IndexManager) Delete(ctx context.Context, q host.Querier, states []*state.State, only *classes.Index, symbol SymbolLookup) error {
	if len(states) == 0 {
		return nil
	}
	started := time.Now()
	defer func() {
		IndexDuration.WithLabelValues("delete").Observe(float64(time.Since(started).Milliseconds()))
	}()
	d := im.c.Dialect()
	tables := im.Tables()
	where := ""
	var symbolArg []any
	if only != nil {
		t := im.TableFor(only)
		if t == nil {
			return nil
		}
		tables = []*Table{t}
		id, ok, err := symbol(ctx, only.UniqueName())
		if err != nil {
			return err
		}
		if !ok {
			// never written, nothing to delete
			return nil
		}
		where = "symbolId = " + d.Bind(1, dialect.IntColumn) + " AND "
		symbolArg = []any{id}
	}
	ids := make([]any, 0, len(states))
	for _, s := range states {
		ids = append(ids, s.ID.String())
	}
	for _, t := range tables {
		var b strings.Builder
		b.WriteString("DELETE FROM ")
		b.WriteString(t.Name)
		b.WriteString(" WHERE ")
		b.WriteString(where)
		b.WriteString("id IN (")
		for i := range ids {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Bind(len(symbolArg)+i+1, dialect.UUIDColumn))
		}
		b.WriteString(")")
		stmt := b.String()
		res, err := q.ExecContext(ctx, stmt, append(symbolArg, ids...)...)
		if err != nil {
			return &recdb_errors.SQLError{SQL: stmt, Err: err}
		}
		if n, err := res.RowsAffected(); err == nil {
			IndexRows.WithLabelValues(t.Name, "delete").Add(float64(n))
		}
	}
	return nil
}

// Rows converts extracted values into bindable rows, de-duplicated. Names
// without a symbol are reported in a MissingSymbolsError.
func (im *IndexManager) Rows(ctx context.Context, extracted map[*state.State][]*IndexValue, symbol SymbolLookup) ([]Row, error) {
	var rows []Row
	var missing []string
	seen := map[uint64]bool{}
	for s, values := range extracted {
		for _, v := range values {
			t := im.TableFor(v.Index)
			if t == nil {
				continue
			}
			name := v.UniqueName()
			id, ok, err := symbol(ctx, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = append(missing, name)
				continue
			}
			for _, tuple := range v.Tuples {
				// compound rows store the first component
				bound, ok := t.BindValue(v.Index, tuple[0])
				if !ok {
					continue
				}
				key := xxhash.Sum64([]byte(t.Name + "\x00" + s.ID.String() + "\x00" + s.TypeID.String() +
					"\x00" + strconv.Itoa(id) + "\x00" + fmt.Sprint(bound)))
				if seen[key] {
					IndexDuplicates.WithLabelValues(t.Name).Inc()
					continue
				}
				seen[key] = true
				rows = append(rows, Row{Table: t, ID: s.ID, TypeID: s.TypeID, SymbolID: id, Value: bound})
			}
		}
	}
	if len(missing) > 0 {
		return nil, &recdb_errors.MissingSymbolsError{Names: missing}
	}
	return rows, nil
}

// Insert writes rows with one multi-row INSERT per table and chunk.
func (im *IndexManager) Insert(ctx context.Context, q host.Querier, rows []Row) error {
	started := time.Now()
	defer func() {
		IndexDuration.WithLabelValues("insert").Observe(float64(time.Since(started).Milliseconds()))
	}()
	byTable := map[*Table][]Row{}
	for _, r := range rows {
		byTable[r.Table] = append(byTable[r.Table], r)
	}
	for _, t := range im.Tables() {
		list := byTable[t]
		for len(list) > 0 {
			n := min(len(list), insertChunk)
			if err := im.insertChunk(ctx, q, t, list[:n]); err != nil {
				return err
			}
			IndexRows.WithLabelValues(t.Name, "insert").Add(float64(n))
			list = list[n:]
		}
	}
	return nil
}

func (im *IndexManager) insertChunk(ctx context.Context, q host.Querier, t *Table, rows []Row) error {
	d := im.c.Dialect()
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.Name)
	b.WriteString(" (symbolId, typeId, id, value) VALUES ")
	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i*4 + 1
		b.WriteString("(")
		b.WriteString(dialect.Placeholders(d, n, dialect.IntColumn, dialect.UUIDColumn, dialect.UUIDColumn))
		b.WriteString(", ")
		b.WriteString(t.ValuePlaceholder(d, n+3))
		b.WriteString(")")
		args = append(args, r.SymbolID, r.TypeID.String(), r.ID.String(), r.Value)
	}
	stmt := b.String()
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return &recdb_errors.SQLError{SQL: stmt, Err: err}
	}
	return nil
}
