package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb/recdb_errors"
)

const doc = `
fields:
  - {name: tags, type: text, collection: true}
indexes:
  - fields: [tags]
classes:
  - name: Article
    fields:
      - {name: title, type: text}
      - {name: score, type: number}
      - {name: editor, type: record, types: [Person]}
    indexes:
      - fields: [title, score]
        caseSensitive: true
      - fields: [score]
      - fields: [editor]
`

func TestParseYAML(t *testing.T) {
	env, err := ParseYAML([]byte(doc))
	require.NoError(t, err)

	tags, ok := env.Field("tags")
	require.True(t, ok)
	assert.True(t, tags.Collection)
	assert.Equal(t, "tags", tags.UniqueName())
	require.Len(t, env.Indexes, 1)
	assert.Equal(t, "tags", env.Indexes[0].UniqueName())
	assert.Equal(t, Text, env.Indexes[0].Type)

	article, err := env.ClassByName("Article")
	require.NoError(t, err)
	assert.Equal(t, ClassID("Article"), article.ID)
	same, err := env.ClassByID(article.ID)
	require.NoError(t, err)
	assert.Same(t, article, same)

	title, ok := article.Field("title")
	require.True(t, ok)
	assert.Equal(t, "Article/title", title.UniqueName())

	compound := article.IndexesOn("title")
	require.Len(t, compound, 1)
	assert.True(t, compound[0].Compound())
	assert.True(t, compound[0].CaseSensitive)
	assert.Equal(t, "Article/title,score", compound[0].UniqueName())
	assert.Equal(t, Text, compound[0].Type)

	assert.Equal(t, Number, article.IndexesOn("score")[0].Type)
	assert.Equal(t, Record, article.IndexesOn("editor")[0].Type)
	assert.Len(t, env.AllIndexes(), 4)
}

func TestUnknownClass(t *testing.T) {
	env := NewEnvironment()
	_, err := env.ClassByName("Nope")
	assert.ErrorIs(t, err, recdb_errors.ErrUnknownClass)
	_, err = env.ClassByID(ClassID("Nope"))
	assert.ErrorIs(t, err, recdb_errors.ErrUnknownClass)
}

func TestAddRejects(t *testing.T) {
	env := NewEnvironment()
	assert.Error(t, env.Add(&Class{}))
	assert.Error(t, env.Add(&Class{Name: "A", Fields: Fields{{Name: "a/b"}}}))
	assert.Error(t, env.Add(&Class{Name: "A", Indexes: []*Index{{Fields: []string{"missing"}}}}))
	assert.Error(t, env.Add(&Class{Name: "A", Indexes: []*Index{{}}}))
	assert.Error(t, env.AddGlobal(Field{Name: "a,b"}))
}

func TestClassIndexOnGlobalField(t *testing.T) {
	env := NewEnvironment()
	require.NoError(t, env.AddGlobal(Field{Name: "created", Type: Date}))
	c := &Class{Name: "Log", Indexes: []*Index{{Fields: []string{"created"}}}}
	require.NoError(t, env.Add(c))
	assert.Equal(t, Date, c.Indexes[0].Type)
	assert.Equal(t, "Log/created", c.Indexes[0].UniqueName())
}

func TestClassesSorted(t *testing.T) {
	env := NewEnvironment()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, env.Add(&Class{Name: name}))
	}
	var names []string
	for c := range env.Classes() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestParseYAMLError(t *testing.T) {
	_, err := ParseYAML([]byte("classes: [1"))
	assert.Error(t, err)
}
