package sqlgen

import (
	"regexp"
	"strings"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/recdb_errors"
)

// rangeGroup matches a range bucketing group field such as "price(0,100,10)".
var rangeGroup = regexp.MustCompile(`^[^()]+\([^()]*,[^()]*,[^()]*\)$`)

type orderTerm struct {
	expr string
	desc bool
}

func (o orderTerm) direction() string {
	if o.desc {
		return " DESC"
	}
	return " ASC"
}

// orderBy renders the sorters. Sorting never drops records, so every join
// it touches becomes an outer join.
func (cp *compilation) orderBy() ([]orderTerm, error) {
	terms := make([]orderTerm, 0, len(cp.q.Sorters))
	for _, s := range cp.q.Sorters {
		var wrap func(string) string
		switch s.Op {
		case query.Ascending, query.Descending:
		case query.Closest, query.Farthest:
			point := dialect.GeometryLiteral(s.Point.WKT())
			wrap = func(column string) string {
				return "ST_Length(ST_MakeLine(" + point + ", " + column + "))"
			}
		default:
			return nil, &recdb_errors.UnsupportedPredicateError{Predicate: s.Key, Reason: "unknown sort " + string(s.Op)}
		}
		desc := s.Op == query.Descending || s.Op == query.Farthest
		expr, err := cp.valueExpr(s.Key, wrap, desc, true)
		if err != nil {
			return nil, err
		}
		terms = append(terms, orderTerm{expr: expr, desc: desc})
	}
	return terms, nil
}

// valueExpr is the expression a sort or group reads for key. With
// aggregate set, a collection contributes its smallest value, or its
// largest when desc. Otherwise each collection value is its own row.
func (cp *compilation) valueExpr(key string, wrap func(string) string, desc, aggregate bool) (string, error) {
	m := cp.keys[key]
	switch m.Special {
	case "":
	case query.IDKey:
		return cp.id, nil
	case query.TypeKey:
		if cp.typeID != "" {
			return cp.typeID, nil
		}
		fallthrough
	default:
		return "", &recdb_errors.UnsupportedIndexError{Key: key, Reason: "cannot sort or group by " + key}
	}
	if m.HasSubQuery() {
		j, err := cp.joinFor(key)
		if err != nil {
			return "", err
		}
		j.leftOuter = true
		if m.Collection {
			cp.needsDistinct = true
		}
		sub := &query.Query{Types: m.SubTypes, Sorters: []query.Sorter{{Key: m.SubKey}}}
		ch, err := cp.child(sub, j.value())
		if err != nil {
			return "", err
		}
		markLeft := len(cp.arena.joins)
		expr, err := ch.valueExpr(m.SubKey, wrap, desc, aggregate)
		for _, cj := range cp.arena.joins[markLeft:] {
			cj.leftOuter = true
		}
		cp.needsDistinct = cp.needsDistinct || ch.needsDistinct
		return expr, err
	}
	sel, err := cp.selectIndex(key)
	if err != nil {
		return "", err
	}
	if wrap != nil && sel.table != indexes.LocationTable {
		return "", &recdb_errors.UnsupportedIndexError{Key: key, Reason: "distance sorts need a location index"}
	}
	if wrap == nil {
		wrap = func(column string) string { return column }
	}
	if m.Collection && aggregate {
		symbols, err := cp.symbolsOf(sel)
		if err != nil {
			return "", err
		}
		agg := "MIN"
		if desc {
			agg = "MAX"
		}
		*cp.subs++
		alias := "s" + itoa(*cp.subs) + "x"
		return "(SELECT " + agg + "(" + wrap(alias+".value") + ") FROM " + sel.table.Name + " " + alias +
			" WHERE " + alias + ".id = " + cp.id +
			" AND " + alias + ".symbolId IN (" + (&join{symbols: symbols}).symbolList() + "))", nil
	}
	var j *join
	if m.Collection {
		j, err = cp.newJoin(key)
		cp.needsDistinct = true
	} else {
		j, err = cp.joinFor(key)
	}
	if err != nil {
		return "", err
	}
	j.leftOuter = true
	return wrap(j.value()), nil
}

// groupBy maps the group fields and renders one expression per field.
func (cp *compilation) groupBy(fields []string) ([]string, error) {
	for _, f := range fields {
		if rangeGroup.MatchString(strings.TrimSpace(f)) {
			return nil, recdb_errors.ErrGroupByRange
		}
	}
	if err := cp.mapKeys(fields); err != nil {
		return nil, err
	}
	exprs := make([]string, len(fields))
	for i, f := range fields {
		expr, err := cp.valueExpr(f, nil, false, false)
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
	}
	return exprs, nil
}
