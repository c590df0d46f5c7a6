package testutils

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
)

// OpenSQLite opens a fresh database file in a temporary directory that is
// closed and removed with the test.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	db, err := dialect.OpenSQLite(filepath.Join(t.TempDir(), "recdb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const fixtureYAML = `
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
      - {name: home, type: location}
    indexes:
      - fields: [name]
      - fields: [home]
  - name: Article
    fields:
      - {name: title, type: text}
      - {name: code, type: text}
      - {name: score, type: number}
      - {name: published, type: date}
      - {name: tags, type: text, collection: true}
      - {name: place, type: location}
      - {name: area, type: region}
      - {name: author, type: record, types: [Author]}
      - {name: editor, type: record, types: [Person]}
      - {name: related, type: record, types: [Article], collection: true}
    indexes:
      - fields: [title]
      - fields: [code]
        caseSensitive: true
      - fields: [score]
      - fields: [published]
      - fields: [tags]
      - fields: [place]
      - fields: [area]
      - fields: [author]
      - fields: [editor]
      - fields: [related]
`

// Fixture is a small catalog: articles with every indexable kind of field,
// an embedded author, referenced editors and a computed slug.
func Fixture(t testing.TB) *classes.Environment {
	t.Helper()
	env := classes.NewEnvironment()
	require.NoError(t, env.AddGlobal(classes.Field{Name: "labels", Type: classes.Text, Collection: true},
		&classes.Index{Fields: []string{"labels"}}))
	parsed, err := classes.ParseYAML([]byte(fixtureYAML))
	require.NoError(t, err)
	for c := range parsed.Classes() {
		if c.Name == "Article" {
			c.Fields = append(c.Fields, classes.Field{Name: "slug", Type: classes.Text, Compute: Slug})
			c.Indexes = append(c.Indexes, &classes.Index{Fields: []string{"slug"}})
		}
		require.NoError(t, env.Add(c))
	}
	return env
}

// Slug derives a dashed lower-case slug from the title.
func Slug(values map[string]any) any {
	title, _ := values["title"].(string)
	if title == "" {
		return nil
	}
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}
