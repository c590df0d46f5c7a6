package query

import (
	"testing"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("title = ? and (tags = missing or score >= 10) and not name startsWith 'O''Brien'", "Hello")
	require.NoError(t, err)

	and, ok := p.(*Compound)
	require.True(t, ok)
	assert.Equal(t, And, and.Op)
	require.Len(t, and.Children, 3)

	assert.Equal(t, &Comparison{Key: "title", Op: EqualsAny, Values: []any{"Hello"}}, and.Children[0])

	or := and.Children[1].(*Compound)
	assert.Equal(t, Or, or.Op)
	assert.True(t, IsMissing(or.Children[0].(*Comparison).Values[0]))
	assert.Equal(t, []any{10.0}, or.Children[1].(*Comparison).Values)

	not := and.Children[2].(*Compound)
	assert.Equal(t, Not, not.Op)
	assert.Equal(t, &Comparison{Key: "name", Op: StartsWith, Values: []any{"O'Brien"}}, not.Children[0])
}

func TestParseLists(t *testing.T) {
	p, err := Parse("tags = ? and k != [1, 'b', missing]", []string{"a", "b"})
	require.NoError(t, err)
	and := p.(*Compound)
	assert.Equal(t, []any{"a", "b"}, and.Children[0].(*Comparison).Values)
	assert.Equal(t, []any{1.0, "b", Missing}, and.Children[1].(*Comparison).Values)
}

func TestParseErrors(t *testing.T) {
	for _, bad := range []string{"title ~ 1", "title = ", "(a = 1", "a = 'x", "a = ?"} {
		_, err := Parse(bad)
		var pe *recdb_errors.UnsupportedPredicateError
		assert.ErrorAs(t, err, &pe, bad)
	}
	p, err := Parse("  ")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestBuilder(t *testing.T) {
	q := From("Article").
		Where(MustParse("a = 1")).
		Where(Compare("b", Contains, "x")).
		SortAscending("c").
		Option(NoCacheOption, true)

	assert.Equal(t, []string{"a", "b", "c"}, q.Keys())
	assert.True(t, q.BoolOption(NoCacheOption))
	assert.Equal(t, "(a = 1 and b contains 'x')", q.Predicate.String())

	c := q.Clone().SortDescending("d")
	assert.Len(t, q.Sorters, 1)
	assert.Len(t, c.Sorters, 2)
	assert.Nil(t, AndOf(nil, nil))
}

func mappingEnv(t *testing.T) *classes.Environment {
	env, err := classes.ParseYAML([]byte(`
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
  - name: Article
    fields:
      - {name: title, type: text}
      - {name: body, type: text}
      - {name: author, type: record, types: [Author]}
      - {name: related, type: record, types: [Article], collection: true}
    indexes:
      - fields: [title]
      - fields: [title, body]
      - fields: [author]
      - fields: [related]
  - name: Note
    fields:
      - {name: text, type: text}
      - {name: draft, type: record, types: [Author]}
    indexes:
      - fields: [text]
`))
	require.NoError(t, err)
	return env
}

func TestMap(t *testing.T) {
	env := mappingEnv(t)

	m, err := Map(env, []string{"Article"}, "title")
	require.NoError(t, err)
	assert.Equal(t, "title", m.Field.Name)
	assert.Len(t, m.Indexes, 2)
	assert.Equal(t, "Article/title", m.IndexKey(m.Indexes[0]))

	m, err = Map(env, []string{"Article"}, "author/name")
	require.NoError(t, err)
	assert.False(t, m.HasSubQuery())
	assert.Equal(t, "Article/author/name", m.IndexKey(m.Indexes[0]))

	m, err = Map(env, []string{"Article"}, "related/title")
	require.NoError(t, err)
	assert.True(t, m.HasSubQuery())
	assert.Equal(t, "title", m.SubKey)
	assert.Equal(t, []string{"Article"}, m.SubTypes)
	assert.True(t, m.Collection)

	m, err = Map(env, nil, "labels")
	require.NoError(t, err)
	assert.Equal(t, "labels", m.IndexKey(m.Indexes[0]))

	m, err = Map(env, nil, "_id")
	require.NoError(t, err)
	assert.Equal(t, IDKey, m.Special)

	_, err = Map(env, []string{"Article"}, "body")
	var ui *recdb_errors.UnsupportedIndexError
	assert.ErrorAs(t, err, &ui, "body only appears second in a compound index")

	_, err = Map(env, []string{"Article"}, "nope")
	assert.ErrorAs(t, err, &ui)

	// embedded values are only indexed through an index on the embedding field
	_, err = Map(env, []string{"Note"}, "draft/name")
	require.ErrorAs(t, err, &ui)
	assert.Equal(t, "draft/name", ui.Key)
}
