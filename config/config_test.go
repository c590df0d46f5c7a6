package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/utils"
)

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: sqlite
dsn: /tmp/a.sqlite
catalog: main
index_spatial: true
read_timeout: 2s
`), 0o600))
	t.Setenv("RECDB_CATALOG", "override")
	t.Setenv("RECDB_MAX_WRITE_RETRIES", "9")

	var c Config
	require.NoError(t, Load(EnvPrefix, path, &c))
	assert.Equal(t, "/tmp/a.sqlite", c.DSN)
	assert.Equal(t, "override", c.Catalog)
	assert.True(t, c.IndexSpatial)
	assert.Equal(t, 2*time.Second, c.ReadTimeout)
	assert.Equal(t, 9, c.MaxWriteRetries)
}

func TestLoadMissingFile(t *testing.T) {
	var c Config
	assert.Error(t, Load(EnvPrefix, filepath.Join(t.TempDir(), "nope.yaml"), &c))
}

func TestDialect(t *testing.T) {
	for driver, want := range map[string]any{
		"":         dialect.SQLite{},
		"sqlite":   dialect.SQLite{},
		"postgres": dialect.Postgres{},
	} {
		d, err := (&Config{Driver: driver}).Dialect()
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}
	_, err := (&Config{Driver: "oracle"}).Dialect()
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	dir := t.TempDir()
	classesPath := filepath.Join(dir, "classes.yaml")
	require.NoError(t, os.WriteFile(classesPath, []byte(`
classes:
  - name: Note
    fields:
      - {name: text, type: text}
    indexes:
      - fields: [text]
`), 0o600))
	c := Config{DSN: filepath.Join(dir, "db.sqlite"), Classes: classesPath}
	db, err := c.Open(utils.Discard())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Environment().ClassByName("Note")
	assert.NoError(t, err)

	_, err = (&Config{}).Open(utils.Discard())
	assert.Error(t, err)
}
