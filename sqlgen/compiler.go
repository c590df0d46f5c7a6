// Package sqlgen compiles queries over records into SQL against the Record
// table and the index tables. Index values are reached through one join
// per key; the joins filter on the symbols the key is stored under.
package sqlgen

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/query"
)

// SymbolResolver looks symbols up without creating them.
type SymbolResolver interface {
	Resolve(ctx context.Context, name string) (int, bool, error)
}

// TableResolver maps an index to its table, nil when the table is disabled.
type TableResolver interface {
	TableFor(ix *classes.Index) *indexes.Table
}

type Compiler struct {
	d       dialect.Dialect
	env     *classes.Environment
	symbols SymbolResolver
	tables  TableResolver
}

func New(d dialect.Dialect, env *classes.Environment, symbols SymbolResolver, tables TableResolver) *Compiler {
	return &Compiler{d: d, env: env, symbols: symbols, tables: tables}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func comment(q *query.Query) string {
	if q.Comment == "" {
		return ""
	}
	return "/*" + strings.ReplaceAll(q.Comment, "*/", "* /") + "*/ "
}

func limitClause(offset, limit int) string {
	if limit <= 0 {
		return ""
	}
	s := " LIMIT " + itoa(limit)
	if offset > 0 {
		s += " OFFSET " + itoa(offset)
	}
	return s
}

type compiled struct {
	cp    *compilation
	where string
	order []orderTerm
}

func (c *Compiler) compile(ctx context.Context, q *query.Query, sorted bool) (*compiled, error) {
	subs := 0
	cp, err := c.newCompilation(ctx, q, "", &subs)
	if err != nil {
		return nil, err
	}
	where, err := cp.whereClause()
	if err != nil {
		return nil, err
	}
	res := &compiled{cp: cp, where: where}
	if sorted {
		if res.order, err = cp.orderBy(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// rows renders the row select, wrapping a DISTINCT projection when joins
// can multiply records. extra is ANDed into the WHERE clause.
func (res *compiled) rows(extra string, order []orderTerm, offset, limit int) string {
	cp := res.cp
	where := res.where
	if extra != "" {
		if where == "" {
			where = " WHERE " + extra
		} else {
			where += " AND " + extra
		}
	}
	var b strings.Builder
	if !cp.needsDistinct {
		b.WriteString("SELECT r.id, r.typeId, r.data ")
		b.WriteString(cp.from())
		b.WriteString(where)
		for i, o := range order {
			if i == 0 {
				b.WriteString(" ORDER BY ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(o.expr)
			b.WriteString(o.direction())
		}
		b.WriteString(limitClause(offset, limit))
		return b.String()
	}
	b.WriteString("SELECT r.id, r.typeId, r.data FROM (SELECT DISTINCT r.id, r.typeId")
	for i, o := range order {
		b.WriteString(", ")
		b.WriteString(o.expr)
		b.WriteString(" AS o")
		b.WriteString(itoa(i))
	}
	b.WriteString(" ")
	b.WriteString(cp.from())
	b.WriteString(where)
	b.WriteString(") d JOIN Record r ON r.id = d.id AND r.typeId = d.typeId")
	for i, o := range order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		if o.expr == "r.id" {
			b.WriteString("d.id")
		} else {
			b.WriteString("d.o" + itoa(i))
		}
		b.WriteString(o.direction())
	}
	b.WriteString(limitClause(offset, limit))
	return b.String()
}

// Select renders the records matching q in sorter order. A limit of zero
// or less selects everything.
func (c *Compiler) Select(ctx context.Context, q *query.Query, offset, limit int) (string, error) {
	res, err := c.compile(ctx, q, true)
	if err != nil {
		return "", err
	}
	return comment(q) + res.rows("", res.order, offset, limit), nil
}

// SelectAfter pages through the matching records by id, ignoring sorters.
// A nil after starts at the beginning.
func (c *Compiler) SelectAfter(ctx context.Context, q *query.Query, after uuid.UUID, limit int) (string, error) {
	res, err := c.compile(ctx, q, false)
	if err != nil {
		return "", err
	}
	extra := ""
	if after != uuid.Nil {
		extra = "r.id > " + dialect.Quote(after.String())
	}
	return comment(q) + res.rows(extra, []orderTerm{{expr: "r.id"}}, 0, limit), nil
}

func (c *Compiler) Count(ctx context.Context, q *query.Query) (string, error) {
	res, err := c.compile(ctx, q, false)
	if err != nil {
		return "", err
	}
	cp := res.cp
	if !cp.needsDistinct {
		return comment(q) + "SELECT COUNT(*) " + cp.from() + res.where, nil
	}
	return comment(q) + "SELECT COUNT(*) FROM (SELECT DISTINCT r.id, r.typeId " + cp.from() + res.where + ") d", nil
}

// Group counts the matching records per combination of the field values.
// The result columns are _count followed by g0, g1 and so on. Sorters on a
// group field order by it; the default order is by every group column.
func (c *Compiler) Group(ctx context.Context, q *query.Query, fields []string, offset, limit int) (string, error) {
	res, err := c.compile(ctx, q, false)
	if err != nil {
		return "", err
	}
	cp := res.cp
	exprs, err := cp.groupBy(fields)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(comment(q))
	if cp.needsDistinct {
		b.WriteString("SELECT COUNT(DISTINCT r.id) AS _count")
	} else {
		b.WriteString("SELECT COUNT(*) AS _count")
	}
	for i, e := range exprs {
		b.WriteString(", ")
		b.WriteString(e)
		b.WriteString(" AS g")
		b.WriteString(itoa(i))
	}
	b.WriteString(" ")
	b.WriteString(cp.from())
	b.WriteString(res.where)
	if len(exprs) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(exprs, ", "))
	}
	var order []string
	for _, s := range q.Sorters {
		for i, f := range fields {
			if f == s.Key {
				o := orderTerm{expr: "g" + itoa(i), desc: s.Op == query.Descending}
				order = append(order, o.expr+o.direction())
			}
		}
	}
	if len(order) == 0 {
		for i := range exprs {
			order = append(order, "g"+itoa(i)+" ASC")
		}
	}
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	b.WriteString(limitClause(offset, limit))
	return b.String(), nil
}

// LastUpdate selects the latest update time in epoch milliseconds of the
// records of the queried types, restricted to the matching ids when q has
// a predicate.
func (c *Compiler) LastUpdate(ctx context.Context, q *query.Query) (string, error) {
	var conds []string
	if len(q.Types) > 0 {
		ids := make([]string, 0, len(q.Types))
		for _, name := range q.Types {
			cl, err := c.env.ClassByName(name)
			if err != nil {
				return "", err
			}
			ids = append(ids, dialect.Quote(cl.ID.String()))
		}
		conds = append(conds, "u.typeId IN ("+strings.Join(ids, ", ")+")")
	}
	if q.Predicate != nil {
		res, err := c.compile(ctx, q, false)
		if err != nil {
			return "", err
		}
		conds = append(conds, "u.id IN (SELECT r.id "+res.cp.from()+res.where+")")
	}
	s := comment(q) + "SELECT MAX(u.updateDate) FROM RecordUpdate u"
	if len(conds) > 0 {
		s += " WHERE " + strings.Join(conds, " AND ")
	}
	return s, nil
}
