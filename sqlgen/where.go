package sqlgen

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/scalar"
	"github.com/drpcorg/recdb/state"
)

func (cp *compilation) whereClause() (string, error) {
	var parts []string
	if types, err := cp.typeRestriction(); err != nil {
		return "", err
	} else if types != "" {
		parts = append(parts, types)
	}
	if cp.q.Predicate != nil {
		cond, err := cp.predicate(cp.q.Predicate, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (cp *compilation) typeRestriction() (string, error) {
	if len(cp.q.Types) == 0 {
		return "", nil
	}
	ids := make([]string, 0, len(cp.q.Types))
	for _, name := range cp.q.Types {
		c, err := cp.c.env.ClassByName(name)
		if err != nil {
			return "", err
		}
		ids = append(ids, dialect.Quote(c.ID.String()))
	}
	return cp.typeID + " IN (" + strings.Join(ids, ", ") + ")", nil
}

// predicate renders p. Under left, every join it creates is an outer join
// so that OR and NOT see rows without an index value.
func (cp *compilation) predicate(p query.Predicate, left bool) (string, error) {
	switch t := p.(type) {
	case *query.Compound:
		return cp.compound(t, left)
	case *query.Comparison:
		return cp.comparison(t, left)
	}
	return "", &recdb_errors.UnsupportedPredicateError{Predicate: fmt.Sprint(p)}
}

func (cp *compilation) compound(c *query.Compound, left bool) (string, error) {
	if len(c.Children) == 0 {
		return "1 = 1", nil
	}
	childLeft := left
	switch c.Op {
	case query.Or:
		if len(c.Children) > 1 {
			childLeft = true
			cp.needsDistinct = true
		}
	case query.Not:
		childLeft = true
		if len(c.Children) > 1 {
			cp.needsDistinct = true
		}
	}
	parts := make([]string, 0, len(c.Children))
	for _, child := range c.Children {
		s, err := cp.predicate(child, childLeft)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	switch c.Op {
	case query.And:
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case query.Or:
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case query.Not:
		return "NOT (" + strings.Join(parts, " AND ") + ")", nil
	}
	return "", &recdb_errors.UnsupportedPredicateError{Predicate: c.String(), Reason: "unknown operator " + string(c.Op)}
}

func hasMissing(values []any) bool {
	for _, v := range values {
		if v == nil || query.IsMissing(v) {
			return true
		}
	}
	return false
}

func (cp *compilation) comparison(cmp *query.Comparison, left bool) (string, error) {
	m := cp.keys[cmp.Key]
	if m.Special != "" {
		return cp.special(cmp)
	}
	if len(cmp.Values) == 0 {
		if cmp.Op == query.NotEqualsAll {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}
	if m.HasSubQuery() {
		return cp.reference(cmp, left)
	}
	sel, err := cp.selectIndex(cmp.Key)
	if err != nil {
		return "", err
	}
	if m.Collection && cmp.Op == query.NotEqualsAll {
		return cp.collectionNotEquals(cmp, sel)
	}
	var j *join
	if m.Collection {
		j, err = cp.newJoin(cmp.Key)
		cp.needsDistinct = true
	} else {
		j, err = cp.joinFor(cmp.Key)
	}
	if err != nil {
		return "", err
	}
	missing := hasMissing(cmp.Values)
	if left || missing || cmp.Op == query.NotEqualsAll {
		j.leftOuter = true
	}
	cond, err := cp.condition(j.value(), sel, cmp)
	if err != nil {
		return "", err
	}
	if missing || cmp.Op == query.NotEqualsAll {
		return "(" + cond + ")", nil
	}
	return "(" + j.value() + " IS NOT NULL AND (" + cond + "))", nil
}

// collectionNotEquals excludes an object when any of its values matches,
// which a per-row join cannot express.
func (cp *compilation) collectionNotEquals(cmp *query.Comparison, sel *selection) (string, error) {
	symbols, err := cp.symbolsOf(sel)
	if err != nil {
		return "", err
	}
	*cp.subs++
	alias := fmt.Sprintf("s%dx", *cp.subs)
	base := "SELECT " + alias + ".id FROM " + sel.table.Name + " " + alias +
		" WHERE " + alias + ".symbolId IN (" + (&join{symbols: symbols}).symbolList() + ")"
	var parts, literals []string
	for _, v := range cmp.Values {
		if v == nil || query.IsMissing(v) {
			parts = append(parts, cp.id+" IN ("+base+")")
			continue
		}
		lit, err := cp.literal(sel, cmp, v)
		if err != nil {
			return "", err
		}
		literals = append(literals, lit)
	}
	if len(literals) > 0 {
		var match string
		if sel.table.Spatial {
			eq := make([]string, len(literals))
			for i, l := range literals {
				eq[i] = "ST_Equals(" + alias + ".value, " + l + ")"
			}
			match = "(" + strings.Join(eq, " OR ") + ")"
		} else {
			match = alias + ".value IN (" + strings.Join(literals, ", ") + ")"
		}
		parts = append(parts, cp.id+" NOT IN ("+base+" AND "+match+")")
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

// reference compiles a key that crosses a non-embedded record field. Simple
// single-valued matches are flattened into joins on the referenced id; the
// rest become an IN subquery over the referenced class.
func (cp *compilation) reference(cmp *query.Comparison, left bool) (string, error) {
	m := cp.keys[cmp.Key]
	missing := hasMissing(cmp.Values)
	sub := &query.Query{
		Types:     m.SubTypes,
		Predicate: &query.Comparison{Key: m.SubKey, Op: cmp.Op, Values: cmp.Values},
	}
	flatten := !left && !m.Collection && !missing && cmp.Op != query.NotEqualsAll &&
		!strings.Contains(m.SubKey, "/")
	if flatten {
		j, err := cp.joinFor(cmp.Key)
		if err != nil {
			return "", err
		}
		ch, err := cp.child(sub, j.value())
		if err != nil {
			return "", err
		}
		cond, err := ch.predicate(sub.Predicate, false)
		if err != nil {
			return "", err
		}
		cp.needsDistinct = cp.needsDistinct || ch.needsDistinct
		return cond, nil
	}
	var j *join
	var err error
	if m.Collection {
		j, err = cp.newJoin(cmp.Key)
		cp.needsDistinct = true
	} else {
		j, err = cp.joinFor(cmp.Key)
	}
	if err != nil {
		return "", err
	}
	if left {
		j.leftOuter = true
	}
	subSQL, err := cp.subquery(sub)
	if err != nil {
		return "", err
	}
	return "(" + j.value() + " IS NOT NULL AND " + j.value() + " IN (" + subSQL + "))", nil
}

func (cp *compilation) special(cmp *query.Comparison) (string, error) {
	var column string
	switch cmp.Key {
	case query.IDKey:
		column = cp.id
	case query.TypeKey:
		if cp.typeID == "" {
			return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "no type column"}
		}
		column = cp.typeID
	default:
		return "", &recdb_errors.UnsupportedIndexError{Key: cmp.Key, Reason: "not supported by SQL storage"}
	}
	var ids []string
	for _, v := range cmp.Values {
		if v == nil || query.IsMissing(v) {
			continue
		}
		id, err := cp.recordID(cmp, v)
		if err != nil {
			return "", err
		}
		ids = append(ids, dialect.Quote(id.String()))
	}
	switch cmp.Op {
	case query.EqualsAny:
		if len(ids) == 0 {
			return "1 = 0", nil
		}
		return column + " IN (" + strings.Join(ids, ", ") + ")", nil
	case query.NotEqualsAll:
		if len(ids) == 0 {
			return "1 = 1", nil
		}
		return column + " NOT IN (" + strings.Join(ids, ", ") + ")", nil
	}
	return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "only equality is supported on " + cmp.Key}
}

// recordID accepts ids, records, references and, for _type, class names.
func (cp *compilation) recordID(cmp *query.Comparison, v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case *state.State:
		if cmp.Key == query.TypeKey {
			return t.TypeID, nil
		}
		return t.ID, nil
	case state.Ref:
		if cmp.Key == query.TypeKey {
			return t.TypeID, nil
		}
		return t.ID, nil
	case string:
		if id, err := uuid.Parse(t); err == nil {
			return id, nil
		}
		if cmp.Key == query.TypeKey {
			if c, err := cp.c.env.ClassByName(t); err == nil {
				return c.ID, nil
			}
		}
	}
	return uuid.Nil, fmt.Errorf("%w: %v is not an id in %s", recdb_errors.ErrIllegalArgument, v, cmp)
}

func toScalar(v any) (scalar.Value, bool) {
	switch t := v.(type) {
	case *state.State:
		return scalar.OfUUID(t.ID), true
	case state.Ref:
		return scalar.OfUUID(t.ID), true
	}
	return scalar.Of(v)
}

// literal renders a non-missing comparison value for the selected table.
func (cp *compilation) literal(sel *selection, cmp *query.Comparison, v any) (string, error) {
	sv, ok := toScalar(v)
	if ok && sel.table.Spatial {
		// a point only makes sense inside a region
		pointInRegion := sel.table == indexes.RegionTable && sv.Kind == scalar.Point
		if lit, ok := indexes.InlineGeometry(sv); ok && (!pointInRegion || cmp.Op == query.Contains) {
			return lit, nil
		}
		if sv.Kind == scalar.Number && sel.table == indexes.RegionTable && cmp.Op.IsRange() {
			return dialect.QuoteNumber(sv.Number), nil
		}
	} else if ok {
		if lit, ok := sel.table.InlineValue(sel.index, sv); ok {
			return lit, nil
		}
	}
	return "", fmt.Errorf("%w: cannot compare %s with %v", recdb_errors.ErrIllegalArgument, cmp.Key, v)
}

// condition renders the operator over column. Missing values only make
// sense for equality operators.
func (cp *compilation) condition(column string, sel *selection, cmp *query.Comparison) (string, error) {
	table := sel.table
	switch {
	case cmp.Op == query.StartsWith && table != indexes.StringTable:
		return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "startsWith needs a string index"}
	case cmp.Op == query.Contains && (table == indexes.NumberTable || table == indexes.UUIDTable):
		return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "contains needs a string or spatial index"}
	case cmp.Op.IsRange() && table == indexes.LocationTable:
		return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "locations are not ordered"}
	}
	var parts, inList []string
	for _, v := range cmp.Values {
		if v == nil || query.IsMissing(v) {
			switch cmp.Op {
			case query.EqualsAny:
				parts = append(parts, column+" IS NULL")
			case query.NotEqualsAll:
				parts = append(parts, column+" IS NOT NULL")
			default:
				return "", fmt.Errorf("%w: missing is not allowed with %s", recdb_errors.ErrIllegalArgument, cmp.Op)
			}
			continue
		}
		sv, _ := toScalar(v)
		lit, err := cp.literal(sel, cmp, v)
		if err != nil {
			return "", err
		}
		switch cmp.Op {
		case query.EqualsAny:
			switch {
			case table == indexes.LocationTable && sv.Kind == scalar.Region:
				parts = append(parts, "ST_Contains("+lit+", "+column+")")
			case table.Spatial:
				parts = append(parts, "ST_Equals("+column+", "+lit+")")
			default:
				inList = append(inList, lit)
			}
		case query.NotEqualsAll:
			if table.Spatial {
				parts = append(parts, "("+column+" IS NULL OR NOT ST_Equals("+column+", "+lit+"))")
			} else {
				parts = append(parts, "("+column+" IS NULL OR "+column+" <> "+lit+")")
			}
			cp.needsDistinct = true
		case query.Contains:
			s, err := cp.contains(column, table, cmp, sv, lit)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		case query.StartsWith:
			text, _ := sv.AsText()
			runes := utf8.RuneCountInString(indexes.NormalizeText(text, sel.index.CaseSensitive))
			parts = append(parts, cp.c.d.StartsWith(column, lit, runes))
		case query.Less, query.LessEqual, query.Greater, query.GreaterEqual:
			parts = append(parts, rangeCondition(column, table, cmp, sv, lit))
		default:
			return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "unknown operator " + string(cmp.Op)}
		}
	}
	if len(inList) > 0 {
		parts = append([]string{column + " IN (" + strings.Join(inList, ", ") + ")"}, parts...)
	}
	if cmp.Op == query.NotEqualsAll {
		return strings.Join(parts, " AND "), nil
	}
	return strings.Join(parts, " OR "), nil
}

func (cp *compilation) contains(column string, table *indexes.Table, cmp *query.Comparison, sv scalar.Value, lit string) (string, error) {
	switch table {
	case indexes.StringTable:
		return cp.c.d.Contains(column, lit), nil
	case indexes.RegionTable:
		return "ST_Contains(" + column + ", " + lit + ")", nil
	case indexes.LocationTable:
		if sv.Kind == scalar.Region {
			return "ST_Contains(" + lit + ", " + column + ")", nil
		}
	}
	return "", &recdb_errors.UnsupportedPredicateError{Predicate: cmp.String(), Reason: "contains needs a string or region index"}
}

func rangeCondition(column string, table *indexes.Table, cmp *query.Comparison, sv scalar.Value, lit string) string {
	op := map[query.Operator]string{
		query.Less:         "<",
		query.LessEqual:    "<=",
		query.Greater:      ">",
		query.GreaterEqual: ">=",
	}[cmp.Op]
	if table == indexes.RegionTable {
		if sv.Kind == scalar.Region {
			return "ST_Area(" + column + ") " + op + " ST_Area(" + lit + ")"
		}
		return "ST_Area(" + column + ") " + op + " " + lit
	}
	return column + " " + op + " " + lit
}
