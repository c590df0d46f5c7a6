package sqlgen

import (
	"context"
	"strconv"
	"strings"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/recdb_errors"
)

// absentSymbol matches no row; ids start at 1.
const absentSymbol = -1

type join struct {
	alias     string
	table     *indexes.Table
	index     *classes.Index
	symbols   []int
	leftOuter bool
	onID      string
	onType    string
}

func (j *join) value() string {
	return j.alias + ".value"
}

func (j *join) symbolList() string {
	parts := make([]string, len(j.symbols))
	for i, s := range j.symbols {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ", ")
}

func (j *join) sql() string {
	var b strings.Builder
	if j.leftOuter {
		b.WriteString("LEFT OUTER JOIN ")
	} else {
		b.WriteString("JOIN ")
	}
	b.WriteString(j.table.Name)
	b.WriteString(" ")
	b.WriteString(j.alias)
	b.WriteString(" ON ")
	b.WriteString(j.alias)
	b.WriteString(".id = ")
	b.WriteString(j.onID)
	if j.onType != "" {
		b.WriteString(" AND ")
		b.WriteString(j.alias)
		b.WriteString(".typeId = ")
		b.WriteString(j.onType)
	}
	b.WriteString(" AND ")
	b.WriteString(j.alias)
	b.WriteString(".symbolId IN (")
	b.WriteString(j.symbolList())
	b.WriteString(")")
	return b.String()
}

// arena owns the joins of one FROM clause. Flattened reference chains add
// their joins to the arena of the statement they are flattened into.
type arena struct {
	prefix string
	joins  []*join
}

func (a *arena) add(j *join) *join {
	j.alias = a.prefix + "i" + strconv.Itoa(len(a.joins))
	a.joins = append(a.joins, j)
	return j
}

// selection is the index chosen for a key and the symbol names it is
// stored under in each queried class.
type selection struct {
	index *classes.Index
	table *indexes.Table
	names []string
}

// compilation is the state threaded through compiling one statement or
// one flattened reference level.
type compilation struct {
	c     *Compiler
	ctx   context.Context
	q     *query.Query
	arena *arena
	subs  *int

	// columns the joins of this level attach to
	id     string
	typeID string

	keys     map[string]*query.MappedKey
	keySet   map[string]bool
	selected map[string]*selection
	byKey    map[string]*join

	needsDistinct bool
}

func (c *Compiler) newCompilation(ctx context.Context, q *query.Query, prefix string, subs *int) (*compilation, error) {
	cp := &compilation{
		c:      c,
		ctx:    ctx,
		q:      q,
		arena:  &arena{prefix: prefix},
		subs:   subs,
		id:     prefix + "r.id",
		typeID: prefix + "r.typeId",
	}
	if err := cp.mapKeys(q.Keys()); err != nil {
		return nil, err
	}
	return cp, nil
}

func (cp *compilation) record() string {
	return cp.arena.prefix + "r"
}

// child compiles a reference level into the same FROM clause, attached to
// the referenced id column.
func (cp *compilation) child(q *query.Query, idColumn string) (*compilation, error) {
	ch := &compilation{
		c:     cp.c,
		ctx:   cp.ctx,
		q:     q,
		arena: cp.arena,
		subs:  cp.subs,
		id:    idColumn,
	}
	if err := ch.mapKeys(q.Keys()); err != nil {
		return nil, err
	}
	return ch, nil
}

func (cp *compilation) mapKeys(keys []string) error {
	if cp.keys == nil {
		cp.keys = map[string]*query.MappedKey{}
		cp.keySet = map[string]bool{}
		cp.selected = map[string]*selection{}
		cp.byKey = map[string]*join{}
	}
	for _, key := range keys {
		if _, ok := cp.keys[key]; ok {
			continue
		}
		m, err := query.Map(cp.c.env, cp.q.Types, key)
		if err != nil {
			return err
		}
		cp.keys[key] = m
		cp.keySet[key] = true
	}
	return nil
}

// selectIndex prefers the index with the most fields referenced by the
// query. With a single match a single-field index wins over a compound one.
func (cp *compilation) selectIndex(key string) (*selection, error) {
	if sel, ok := cp.selected[key]; ok {
		return sel, nil
	}
	m := cp.keys[key]
	prefix := ""
	for _, p := range m.Prefixes {
		prefix += p.Name + "/"
	}
	var best *classes.Index
	most := 0
	for _, ix := range m.Indexes {
		count := 1
		for _, f := range ix.Fields[1:] {
			if cp.keySet[prefix+f] {
				count++
			}
		}
		if count > most {
			best, most = ix, count
		}
	}
	if most == 1 {
		for _, ix := range m.Indexes {
			if !ix.Compound() {
				best = ix
				break
			}
		}
	}
	table := cp.c.tables.TableFor(best)
	if table == nil {
		return nil, &recdb_errors.UnsupportedIndexError{Key: key, Reason: "spatial indexing is disabled"}
	}
	sel := &selection{index: best, table: table}
	signature := strings.Join(best.Fields, ",")
	seen := map[string]bool{}
	for _, ix := range m.Indexes {
		name := m.IndexKey(ix)
		if strings.Join(ix.Fields, ",") == signature && !seen[name] {
			seen[name] = true
			sel.names = append(sel.names, name)
		}
	}
	cp.selected[key] = sel
	return sel, nil
}

func (cp *compilation) symbolsOf(sel *selection) ([]int, error) {
	var ids []int
	for _, name := range sel.names {
		id, ok, err := cp.c.symbols.Resolve(cp.ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []int{absentSymbol}
	}
	return ids, nil
}

func (cp *compilation) newJoin(key string) (*join, error) {
	sel, err := cp.selectIndex(key)
	if err != nil {
		return nil, err
	}
	symbols, err := cp.symbolsOf(sel)
	if err != nil {
		return nil, err
	}
	return cp.arena.add(&join{
		table:   sel.table,
		index:   sel.index,
		symbols: symbols,
		onID:    cp.id,
		onType:  cp.typeID,
	}), nil
}

// joinFor reuses the join of a single-valued key.
func (cp *compilation) joinFor(key string) (*join, error) {
	if j, ok := cp.byKey[key]; ok {
		return j, nil
	}
	j, err := cp.newJoin(key)
	if err != nil {
		return nil, err
	}
	cp.byKey[key] = j
	return j, nil
}

// subquery compiles q as "SELECT id FROM Record ..." with its own aliases.
func (cp *compilation) subquery(q *query.Query) (string, error) {
	*cp.subs++
	prefix := "s" + strconv.Itoa(*cp.subs)
	sub, err := cp.c.newCompilation(cp.ctx, q, prefix, cp.subs)
	if err != nil {
		return "", err
	}
	where, err := sub.whereClause()
	if err != nil {
		return "", err
	}
	return "SELECT " + sub.record() + ".id " + sub.from() + where, nil
}

func (cp *compilation) from() string {
	var b strings.Builder
	b.WriteString("FROM Record ")
	b.WriteString(cp.record())
	for _, j := range cp.arena.joins {
		b.WriteString(" ")
		b.WriteString(j.sql())
	}
	return b.String()
}
