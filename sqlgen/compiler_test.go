package sqlgen

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/geo"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/recdb_errors"
)

type fakeSymbols map[string]int

func (f fakeSymbols) Resolve(_ context.Context, name string) (int, bool, error) {
	id, ok := f[name]
	return id, ok, nil
}

type fakeTables struct{ spatial bool }

func (f fakeTables) TableFor(ix *classes.Index) *indexes.Table {
	t := indexes.TableFor(ix.Type)
	if t.Spatial && !f.spatial {
		return nil
	}
	return t
}

const fixture = `
fields:
  - {name: labels, type: text, collection: true}
indexes:
  - fields: [labels]
classes:
  - name: Author
    embedded: true
    fields:
      - {name: name, type: text}
    indexes:
      - fields: [name]
  - name: Person
    fields:
      - {name: name, type: text}
    indexes:
      - fields: [name]
  - name: Article
    fields:
      - {name: title, type: text}
      - {name: code, type: text}
      - {name: score, type: number}
      - {name: tags, type: text, collection: true}
      - {name: place, type: location}
      - {name: area, type: region}
      - {name: author, type: record, types: [Author]}
      - {name: editor, type: record, types: [Person]}
      - {name: related, type: record, types: [Article], collection: true}
    indexes:
      - fields: [title]
      - fields: [title, score]
      - fields: [code]
        caseSensitive: true
      - fields: [score]
      - fields: [tags]
      - fields: [place]
      - fields: [area]
      - fields: [author]
      - fields: [editor]
      - fields: [related]
`

var symbols = fakeSymbols{
	"Article/title":       1,
	"Article/title,score": 2,
	"Article/score":       3,
	"Article/tags":        4,
	"Article/place":       5,
	"Article/area":        6,
	"Article/editor":      7,
	"Article/related":     8,
	"Article/author/name": 9,
	"Person/name":         10,
	"Article/code":        11,
}

func compiler(t *testing.T, spatial bool) *Compiler {
	env, err := classes.ParseYAML([]byte(fixture))
	require.NoError(t, err)
	return New(dialect.SQLite{}, env, symbols, fakeTables{spatial: spatial})
}

var article = "'" + classes.ClassID("Article").String() + "'"

func where(key string, op query.Operator, values ...any) *query.Query {
	return query.From("Article").Where(query.Compare(key, op, values...))
}

func selectSQL(t *testing.T, q *query.Query) string {
	s, err := compiler(t, true).Select(context.Background(), q, 0, 0)
	require.NoError(t, err)
	return s
}

func TestSelectEquals(t *testing.T) {
	s := selectSQL(t, where("title", query.EqualsAny, "  Hello   World "))
	assert.Equal(t, "SELECT r.id, r.typeId, r.data FROM Record r"+
		" JOIN RecordString i0 ON i0.id = r.id AND i0.typeId = r.typeId AND i0.symbolId IN (1)"+
		" WHERE r.typeId IN ("+article+") AND (i0.value IS NOT NULL AND (i0.value IN ('hello world')))", s)
}

func TestCaseSensitiveIndexKeepsCase(t *testing.T) {
	s := selectSQL(t, where("code", query.EqualsAny, "AbC", "d"))
	assert.Contains(t, s, "i0.value IN ('AbC', 'd')")
}

func TestMissingValues(t *testing.T) {
	s := selectSQL(t, where("title", query.EqualsAny, query.Missing, "x"))
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i0")
	assert.Contains(t, s, "(i0.value IN ('x') OR i0.value IS NULL)")
	assert.NotContains(t, s, "DISTINCT")

	s = selectSQL(t, where("title", query.NotEqualsAll, query.Missing, "x"))
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i0")
	assert.Contains(t, s, "(i0.value IS NOT NULL AND (i0.value IS NULL OR i0.value <> 'x'))")
	assert.Contains(t, s, "SELECT DISTINCT r.id, r.typeId")

	for _, op := range []query.Operator{query.Less, query.Contains, query.StartsWith} {
		_, err := compiler(t, true).Select(context.Background(), where("title", op, query.Missing), 0, 0)
		assert.ErrorIs(t, err, recdb_errors.ErrIllegalArgument, op)
	}
}

func TestOrForcesOuterJoinsAndDistinct(t *testing.T) {
	q := query.From("Article").Where(query.OrOf(
		query.Compare("title", query.EqualsAny, "a"),
		query.Compare("score", query.Greater, 3),
	))
	s := selectSQL(t, q)
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i0")
	assert.Contains(t, s, "LEFT OUTER JOIN RecordNumber i1")
	assert.Contains(t, s, "((i0.value IS NOT NULL AND (i0.value IN ('a'))) OR (i1.value IS NOT NULL AND (i1.value > 3)))")
	assert.True(t, strings.HasPrefix(s, "SELECT r.id, r.typeId, r.data FROM (SELECT DISTINCT r.id, r.typeId FROM Record r"))
	assert.Contains(t, s, ") d JOIN Record r ON r.id = d.id AND r.typeId = d.typeId")

	s = selectSQL(t, query.From("Article").Where(query.NotOf(query.Compare("title", query.EqualsAny, "a"))))
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i0")
	assert.Contains(t, s, "NOT ((i0.value IS NOT NULL AND (i0.value IN ('a'))))")
}

func TestAndSharesSingleValuedJoin(t *testing.T) {
	q := query.From("Article").Where(query.AndOf(
		query.Compare("score", query.GreaterEqual, 1),
		query.Compare("score", query.Less, 10),
	))
	s := selectSQL(t, q)
	assert.Equal(t, 1, strings.Count(s, "JOIN RecordNumber"))
	assert.Contains(t, s, "i0.value >= 1")
	assert.Contains(t, s, "i0.value < 10")
}

func TestCompoundIndexSelection(t *testing.T) {
	q := query.From("Article").Where(query.AndOf(
		query.Compare("title", query.EqualsAny, "a"),
		query.Compare("score", query.Greater, 1),
	))
	s := selectSQL(t, q)
	assert.Contains(t, s, "JOIN RecordString i0 ON i0.id = r.id AND i0.typeId = r.typeId AND i0.symbolId IN (2)")
	assert.Contains(t, s, "JOIN RecordNumber i1 ON i1.id = r.id AND i1.typeId = r.typeId AND i1.symbolId IN (3)")

	s = selectSQL(t, where("title", query.EqualsAny, "a"))
	assert.Contains(t, s, "i0.symbolId IN (1)")
}

func TestCollections(t *testing.T) {
	q := query.From("Article").Where(query.AndOf(
		query.Compare("tags", query.EqualsAny, "a"),
		query.Compare("tags", query.EqualsAny, "b"),
	))
	s := selectSQL(t, q)
	assert.Contains(t, s, "JOIN RecordString i0")
	assert.Contains(t, s, "JOIN RecordString i1")
	assert.Contains(t, s, "SELECT DISTINCT")

	s = selectSQL(t, where("tags", query.NotEqualsAll, "a", "b"))
	assert.Contains(t, s, "(r.id NOT IN (SELECT s1x.id FROM RecordString s1x WHERE s1x.symbolId IN (4) AND s1x.value IN ('a', 'b')))")
	assert.NotContains(t, s, "JOIN RecordString")
}

func TestStringOperators(t *testing.T) {
	s := selectSQL(t, where("title", query.StartsWith, "FÖo"))
	assert.Contains(t, s, "substr(i0.value, 1, 3) = 'föo'")

	s = selectSQL(t, where("title", query.Contains, "Bar"))
	assert.Contains(t, s, "instr(i0.value, 'bar') > 0")

	_, err := compiler(t, true).Select(context.Background(), where("score", query.StartsWith, "1"), 0, 0)
	var up *recdb_errors.UnsupportedPredicateError
	assert.ErrorAs(t, err, &up)

	_, err = compiler(t, true).Select(context.Background(), where("score", query.EqualsAny, "abc"), 0, 0)
	assert.ErrorIs(t, err, recdb_errors.ErrIllegalArgument)
}

func TestPostgresStartsWith(t *testing.T) {
	env, err := classes.ParseYAML([]byte(fixture))
	require.NoError(t, err)
	c := New(dialect.Postgres{}, env, symbols, fakeTables{})
	s, err := c.Select(context.Background(), where("title", query.StartsWith, "50%_off"), 0, 0)
	require.NoError(t, err)
	assert.Contains(t, s, `i0.value LIKE '50\%\_off%'`)
}

func TestEmbeddedKey(t *testing.T) {
	s := selectSQL(t, where("author/name", query.EqualsAny, "Ann"))
	assert.Contains(t, s, "i0.symbolId IN (9)")
}

func TestReferenceFlattened(t *testing.T) {
	s := selectSQL(t, where("editor/name", query.EqualsAny, "Bob"))
	assert.Contains(t, s, "JOIN RecordUuid i0 ON i0.id = r.id AND i0.typeId = r.typeId AND i0.symbolId IN (7)")
	assert.Contains(t, s, "JOIN RecordString i1 ON i1.id = i0.value AND i1.symbolId IN (10)")
	assert.Contains(t, s, "(i1.value IS NOT NULL AND (i1.value IN ('bob')))")
	assert.NotContains(t, s, "s1r")
}

func TestReferenceSubquery(t *testing.T) {
	s := selectSQL(t, where("related/title", query.EqualsAny, "x"))
	assert.Contains(t, s, "JOIN RecordUuid i0 ON i0.id = r.id AND i0.typeId = r.typeId AND i0.symbolId IN (8)")
	assert.Contains(t, s, "(i0.value IS NOT NULL AND i0.value IN (SELECT s1r.id FROM Record s1r"+
		" JOIN RecordString s1i0 ON s1i0.id = s1r.id AND s1i0.typeId = s1r.typeId AND s1i0.symbolId IN (1)"+
		" WHERE s1r.typeId IN ("+article+") AND (s1i0.value IS NOT NULL AND (s1i0.value IN ('x')))))")
	assert.Contains(t, s, "SELECT DISTINCT")

	s = selectSQL(t, where("editor/name", query.NotEqualsAll, "Bob"))
	assert.Contains(t, s, "i0.value IN (SELECT s1r.id FROM Record s1r")
}

func TestSpecialKeys(t *testing.T) {
	id := uuid.MustParse("018f0000-0000-7000-8000-000000000001")
	s := selectSQL(t, query.From().Where(query.Compare(query.IDKey, query.EqualsAny, id)))
	assert.Equal(t, "SELECT r.id, r.typeId, r.data FROM Record r WHERE r.id IN ('"+id.String()+"')", s)

	s = selectSQL(t, query.From().Where(query.Compare(query.TypeKey, query.NotEqualsAll, "Article")))
	assert.Contains(t, s, "r.typeId NOT IN ("+article+")")

	_, err := compiler(t, true).Select(context.Background(), query.From().Where(query.Compare(query.AnyKey, query.EqualsAny, "x")), 0, 0)
	var ui *recdb_errors.UnsupportedIndexError
	assert.ErrorAs(t, err, &ui)
}

func TestAbsentSymbolMatchesNothing(t *testing.T) {
	s := selectSQL(t, query.From().Where(query.Compare("labels", query.EqualsAny, "x")))
	assert.Contains(t, s, "i0.symbolId IN (-1)")
	assert.NotContains(t, s, "r.typeId IN")
}

func TestSpatial(t *testing.T) {
	region := geo.NewRegion(geo.Location{X: 0, Y: 0}, geo.Location{X: 0, Y: 10}, geo.Location{X: 10, Y: 10}, geo.Location{X: 10, Y: 0})
	lit := dialect.GeometryLiteral(region.WKT())

	s := selectSQL(t, where("place", query.EqualsAny, region))
	assert.Contains(t, s, "ST_Contains("+lit+", i0.value)")

	s = selectSQL(t, where("area", query.Contains, geo.Location{X: 1, Y: 1}))
	assert.Contains(t, s, "ST_Contains(i0.value, ST_GeomFromText('POINT(1 1)'))")

	s = selectSQL(t, where("area", query.Greater, region))
	assert.Contains(t, s, "ST_Area(i0.value) > ST_Area("+lit+")")

	s = selectSQL(t, where("area", query.Less, 50))
	assert.Contains(t, s, "ST_Area(i0.value) < 50")

	_, err := compiler(t, true).Select(context.Background(), where("place", query.Less, geo.Location{}), 0, 0)
	var up *recdb_errors.UnsupportedPredicateError
	assert.ErrorAs(t, err, &up)

	_, err = compiler(t, true).Select(context.Background(), where("area", query.EqualsAny, geo.Location{X: 1, Y: 1}), 0, 0)
	assert.ErrorIs(t, err, recdb_errors.ErrIllegalArgument)

	_, err = compiler(t, false).Select(context.Background(), where("place", query.EqualsAny, region), 0, 0)
	var ui *recdb_errors.UnsupportedIndexError
	assert.ErrorAs(t, err, &ui)
}

func TestSorters(t *testing.T) {
	s := selectSQL(t, query.From("Article").SortAscending("title").SortDescending("score"))
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i0")
	assert.Contains(t, s, "LEFT OUTER JOIN RecordNumber i1")
	assert.True(t, strings.HasSuffix(s, " ORDER BY i0.value ASC, i1.value DESC"), s)

	s = selectSQL(t, query.From("Article").SortDescending("tags"))
	assert.Contains(t, s, "ORDER BY (SELECT MAX(s1x.value) FROM RecordString s1x WHERE s1x.id = r.id AND s1x.symbolId IN (4)) DESC")

	s = selectSQL(t, query.From("Article").SortClosest("place", geo.Location{X: 1, Y: 2}))
	assert.Contains(t, s, "ORDER BY ST_Length(ST_MakeLine(ST_GeomFromText('POINT(1 2)'), i0.value)) ASC")

	_, err := compiler(t, true).Select(context.Background(), query.From("Article").SortFarthest("title", geo.Location{}), 0, 0)
	var ui *recdb_errors.UnsupportedIndexError
	assert.ErrorAs(t, err, &ui)

	s = selectSQL(t, query.From("Article").SortAscending("editor/name"))
	assert.Contains(t, s, "LEFT OUTER JOIN RecordUuid i0")
	assert.Contains(t, s, "LEFT OUTER JOIN RecordString i1 ON i1.id = i0.value AND i1.symbolId IN (10)")
	assert.True(t, strings.HasSuffix(s, "ORDER BY i1.value ASC"), s)
}

func TestDistinctKeepsOrder(t *testing.T) {
	q := query.From("Article").
		Where(query.Compare("tags", query.EqualsAny, "a", "b")).
		SortAscending("score")
	s, err := compiler(t, true).Select(context.Background(), q, 20, 10)
	require.NoError(t, err)
	assert.Contains(t, s, "SELECT DISTINCT r.id, r.typeId, i1.value AS o0 FROM Record r")
	assert.True(t, strings.HasSuffix(s, "ORDER BY d.o0 ASC LIMIT 10 OFFSET 20"), s)
}

func TestSelectAfter(t *testing.T) {
	after := uuid.MustParse("018f0000-0000-7000-8000-000000000001")
	c := compiler(t, true)
	s, err := c.SelectAfter(context.Background(), where("score", query.Greater, 1).SortAscending("title"), after, 100)
	require.NoError(t, err)
	assert.Contains(t, s, "AND r.id > '"+after.String()+"'")
	assert.True(t, strings.HasSuffix(s, "ORDER BY r.id ASC LIMIT 100"), s)
	assert.NotContains(t, s, "RecordString")

	s, err = c.SelectAfter(context.Background(), query.From(), uuid.Nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "SELECT r.id, r.typeId, r.data FROM Record r ORDER BY r.id ASC LIMIT 5", s)
}

func TestCount(t *testing.T) {
	c := compiler(t, true)
	s, err := c.Count(context.Background(), where("score", query.Greater, 1).SortAscending("title"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "SELECT COUNT(*) FROM Record r JOIN RecordNumber i0"), s)
	assert.NotContains(t, s, "RecordString")

	s, err = c.Count(context.Background(), where("tags", query.EqualsAny, "a"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "SELECT COUNT(*) FROM (SELECT DISTINCT r.id, r.typeId FROM Record r"), s)
}

func TestGroup(t *testing.T) {
	c := compiler(t, true)
	s, err := c.Group(context.Background(), query.From("Article"), []string{"title", "tags"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT r.id) AS _count, i0.value AS g0, i1.value AS g1 FROM Record r"+
		" LEFT OUTER JOIN RecordString i0 ON i0.id = r.id AND i0.typeId = r.typeId AND i0.symbolId IN (1)"+
		" LEFT OUTER JOIN RecordString i1 ON i1.id = r.id AND i1.typeId = r.typeId AND i1.symbolId IN (4)"+
		" WHERE r.typeId IN ("+article+")"+
		" GROUP BY i0.value, i1.value ORDER BY g0 ASC, g1 ASC LIMIT 10", s)

	s, err = c.Group(context.Background(), query.From("Article").SortDescending("score"), []string{"score"}, 0, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "SELECT COUNT(*) AS _count, i0.value AS g0"), s)
	assert.True(t, strings.HasSuffix(s, "ORDER BY g0 DESC"), s)

	_, err = c.Group(context.Background(), query.From("Article"), []string{"score(0,100,10)"}, 0, 0)
	assert.ErrorIs(t, err, recdb_errors.ErrGroupByRange)
}

func TestLastUpdate(t *testing.T) {
	c := compiler(t, true)
	s, err := c.LastUpdate(context.Background(), query.From())
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(u.updateDate) FROM RecordUpdate u", s)

	s, err = c.LastUpdate(context.Background(), where("score", query.Greater, 1))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "SELECT MAX(u.updateDate) FROM RecordUpdate u WHERE u.typeId IN ("+article+") AND u.id IN (SELECT r.id FROM Record r JOIN RecordNumber i0"), s)
}

func TestComment(t *testing.T) {
	s := selectSQL(t, query.From().WithComment("report */ x"))
	assert.True(t, strings.HasPrefix(s, "/*report * / x*/ SELECT"), s)
}
