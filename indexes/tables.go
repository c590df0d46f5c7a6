package indexes

import (
	"strings"
	"unicode/utf8"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/scalar"
)

// MaxStringBytes caps stored string values. Query literals are not capped,
// so prefix and substring matches near the cap can miss.
const MaxStringBytes = 500

// Table describes one physical index table. Every table has the shape
// (id, typeId, symbolId, value) and differs only in the value type.
type Table struct {
	Name    string
	Kind    scalar.Kind
	Spatial bool
}

var (
	StringTable   = &Table{Name: "RecordString", Kind: scalar.Text}
	NumberTable   = &Table{Name: "RecordNumber", Kind: scalar.Number}
	UUIDTable     = &Table{Name: "RecordUuid", Kind: scalar.UUID}
	LocationTable = &Table{Name: "RecordLocation", Kind: scalar.Point, Spatial: true}
	RegionTable   = &Table{Name: "RecordRegion", Kind: scalar.Region, Spatial: true}
)

// Tables lists the tables in use.
func Tables(spatial bool) []*Table {
	if spatial {
		return []*Table{StringTable, NumberTable, UUIDTable, LocationTable, RegionTable}
	}
	return []*Table{StringTable, NumberTable, UUIDTable}
}

// TableFor picks the table by the item type of the index's first field.
func TableFor(t classes.ItemType) *Table {
	switch t {
	case classes.Record, classes.UUID:
		return UUIDTable
	case classes.Date, classes.Number:
		return NumberTable
	case classes.Location:
		return LocationTable
	case classes.Region:
		return RegionTable
	}
	return StringTable
}

func (t *Table) columnType() dialect.ColumnType {
	switch t.Kind {
	case scalar.Number:
		return dialect.DoubleColumn
	case scalar.UUID:
		return dialect.UUIDColumn
	}
	return dialect.TextColumn
}

// ValuePlaceholder is the n-th bind parameter for the value column.
func (t *Table) ValuePlaceholder(d dialect.Dialect, n int) string {
	p := d.Bind(n, t.columnType())
	if t.Spatial {
		return "ST_GeomFromText(" + p + ")"
	}
	return p
}

// BindValue converts v into the value bound for this table. False means the
// value has no row in this table.
func (t *Table) BindValue(ix *classes.Index, v scalar.Value) (any, bool) {
	switch t.Kind {
	case scalar.Text:
		s, ok := v.AsText()
		if !ok {
			return nil, false
		}
		s = NormalizeText(s, ix != nil && ix.CaseSensitive)
		if s == "" {
			return nil, false
		}
		return Truncate(s, MaxStringBytes), true
	case scalar.Number:
		return v.AsNumber()
	case scalar.UUID:
		id, ok := v.AsUUID()
		if !ok {
			return nil, false
		}
		return id.String(), true
	case scalar.Point:
		if v.Kind != scalar.Point {
			return nil, false
		}
		return v.Point.WKT(), true
	case scalar.Region:
		if v.Kind != scalar.Region {
			return nil, false
		}
		return v.Region.WKT(), true
	}
	return nil, false
}

// InlineValue renders v as a SQL literal for this table, normalized like
// BindValue but never truncated.
func (t *Table) InlineValue(ix *classes.Index, v scalar.Value) (string, bool) {
	switch t.Kind {
	case scalar.Text:
		s, ok := v.AsText()
		if !ok {
			return "", false
		}
		return dialect.Quote(NormalizeText(s, ix != nil && ix.CaseSensitive)), true
	case scalar.Number:
		f, ok := v.AsNumber()
		if !ok {
			return "", false
		}
		return dialect.QuoteNumber(f), true
	case scalar.UUID:
		id, ok := v.AsUUID()
		if !ok {
			return "", false
		}
		return dialect.Quote(id.String()), true
	case scalar.Point, scalar.Region:
		return InlineGeometry(v)
	}
	return "", false
}

// InlineGeometry renders a point or region literal regardless of the table.
func InlineGeometry(v scalar.Value) (string, bool) {
	switch v.Kind {
	case scalar.Point:
		return dialect.GeometryLiteral(v.Point.WKT()), true
	case scalar.Region:
		return dialect.GeometryLiteral(v.Region.WKT()), true
	}
	return "", false
}

// NormalizeText trims, collapses inner whitespace and lower-cases unless
// caseSensitive.
func NormalizeText(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
