package repl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb"
	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/state"
	testutils "github.com/drpcorg/recdb/test_utils"
	"github.com/drpcorg/recdb/utils"
)

func newREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	sqldb := testutils.OpenSQLite(t)
	db, err := recdb.Open(sqldb, sqldb, testutils.Fixture(t), recdb.Options{Logger: utils.Discard()})
	require.NoError(t, err)
	require.NoError(t, db.SetUp(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	s := state.New(classes.ClassID("Article")).Put("title", "Hello").Put("score", 3)
	require.NoError(t, db.Save(context.Background(), s))

	out := &bytes.Buffer{}
	r := New(db)
	r.Out = out
	return r, out
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	r, out := newREPL(t)

	require.NoError(t, r.Execute(ctx, "count Article title = 'hello'"))
	assert.Equal(t, "1\n", out.String())

	out.Reset()
	require.NoError(t, r.Execute(ctx, "count * score > 5"))
	assert.Equal(t, "0\n", out.String())

	out.Reset()
	require.NoError(t, r.Execute(ctx, "select Article"))
	assert.Contains(t, out.String(), "title=Hello")

	out.Reset()
	require.NoError(t, r.Execute(ctx, "sql Article title = 'x'"))
	assert.True(t, strings.HasPrefix(out.String(), "SELECT r.id, r.typeId, r.data FROM Record r"))

	out.Reset()
	require.NoError(t, r.Execute(ctx, "symbol Article/title"))
	assert.NotEqual(t, "-1\n", out.String())

	out.Reset()
	require.NoError(t, r.Execute(ctx, "symbol brand/new"))
	assert.Equal(t, "-1\n", out.String())

	out.Reset()
	require.NoError(t, r.Execute(ctx, "classes"))
	assert.Contains(t, out.String(), "Article\t")
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	r, _ := newREPL(t)
	assert.ErrorIs(t, r.Execute(ctx, "exit"), io.EOF)
	assert.ErrorIs(t, r.Execute(ctx, "count"), HelpCount)
	assert.Error(t, r.Execute(ctx, "count Article title ="))
	assert.ErrorIs(t, r.Execute(ctx, "symbol"), HelpSymbol)
	assert.Error(t, r.Execute(ctx, "frobnicate"))
	assert.NoError(t, r.Execute(ctx, "  "))
}
