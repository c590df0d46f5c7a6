package recdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/state"
)

func TestConcurrentAtomicAdd(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{MaxWriteRetries: 50})
	s := newArticle(map[string]any{"title": "shared"})
	require.NoError(t, db.Save(ctx, s))

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		tag := fmt.Sprintf("t%d", i)
		eg.Go(func() error {
			mine := state.Existing(s.ID, s.TypeID, nil)
			mine.Add("tags", tag)
			return db.Save(ctx, mine)
		})
	}
	require.NoError(t, eg.Wait())

	row, ok, err := db.ReadByID(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := row.State()
	require.NoError(t, err)
	assert.Len(t, got.Get("tags"), 8)
	assert.Equal(t, "shared", got.Get("title"))
	for i := 0; i < 8; i++ {
		assert.EqualValues(t, 1, count(t, db, articles("title = 'shared' and tags = ?", fmt.Sprintf("t%d", i))))
	}
}

func TestAtomicOpsApplyToStoredValue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(map[string]any{"score": 1, "tags": []any{"a", "b"}})
	require.NoError(t, db.Save(ctx, s))

	stale := state.Existing(s.ID, s.TypeID, map[string]any{"score": 100})
	stale.Increment("score", 2).Remove("tags", "a")
	require.NoError(t, db.Save(ctx, stale))
	assert.EqualValues(t, 3, stale.Get("score"))
	assert.Empty(t, stale.AtomicOps())

	assert.EqualValues(t, 1, count(t, db, articles("score = 3 and tags = 'b'")))
	assert.Zero(t, count(t, db, articles("tags = 'a'")))
}

func TestAtomicOnMissingRecordInserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(nil)
	s.MarkSaved()
	s.Add("tags", "fresh")
	require.NoError(t, db.Save(ctx, s))
	assert.EqualValues(t, 1, count(t, db, articles("tags = 'fresh'")))
}

func TestCompareAndSwapRetries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(map[string]any{"title": "cas"})
	require.NoError(t, db.Save(ctx, s))

	var calls atomic.Int32
	db.beforeCAS = func(ctx context.Context, q host.Querier) error {
		if calls.Add(1) > 1 {
			return nil
		}
		// a competing writer changes the row under us
		_, err := q.ExecContext(ctx, "UPDATE Record SET data = ? WHERE id = ?", []byte{0x80}, s.ID.String())
		return err
	}
	s.Add("tags", "x")
	require.NoError(t, db.Save(ctx, s))
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, count(t, db, articles("tags = 'x' and title = 'cas'")))
}

func TestCompareAndSwapGivesUp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{MaxWriteRetries: 3})
	s := newArticle(map[string]any{"title": "cas"})
	require.NoError(t, db.Save(ctx, s))

	var calls atomic.Int32
	db.beforeCAS = func(ctx context.Context, q host.Querier) error {
		calls.Add(1)
		_, err := q.ExecContext(ctx, "UPDATE Record SET data = ? WHERE id = ?", []byte{0x80}, s.ID.String())
		return err
	}
	s.Add("tags", "x")
	err := db.Save(ctx, s)
	assert.ErrorIs(t, err, recdb_errors.ErrRetriesExhausted)
	assert.Greater(t, calls.Load(), int32(1))
	assert.Len(t, s.AtomicOps(), 1)
}

func TestRowWriterOscillation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	w := &rowWriter{
		db:     db,
		q:      db.write,
		insert: "INSERT INTO Record (id, typeId, data) SELECT 'a', 'b', x'00' WHERE 1 = 0",
		update: "UPDATE Record SET data = x'00' WHERE 1 = 0",
	}
	err := w.write(ctx, stepInsert)
	assert.ErrorIs(t, err, recdb_errors.ErrWriteOscillation)
	err = w.write(ctx, stepUpdate)
	assert.ErrorIs(t, err, recdb_errors.ErrWriteOscillation)
}

func TestRowWriterFlips(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(map[string]any{"title": "flip"})
	data, err := state.Serialize(s.Values)
	require.NoError(t, err)

	// update on a missing row falls back to insert
	require.NoError(t, db.recordWriter(db.write, s.ID.String(), s.TypeID.String(), data).write(ctx, stepUpdate))
	// insert on an existing row falls back to update
	require.NoError(t, db.recordWriter(db.write, s.ID.String(), s.TypeID.String(), data).write(ctx, stepInsert))
	_, ok, err := db.ReadByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
