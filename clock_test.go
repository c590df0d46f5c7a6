package recdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/utils"
)

func TestUpdateDateInSeconds(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(map[string]any{"title": "dated"})
	require.NoError(t, db.Save(ctx, s))

	var stored float64
	require.NoError(t, db.read.QueryRowContext(ctx,
		"SELECT updateDate FROM RecordUpdate WHERE id = ?", s.ID.String()).Scan(&stored))
	assert.InDelta(t, float64(time.Now().Unix()), stored, 5)

	last, err := db.ReadLastUpdate(ctx, query.From("Article"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
}

func TestClockOffset(t *testing.T) {
	c := &clock{
		ttl: time.Minute,
		log: utils.Discard(),
		read: func(context.Context) (float64, error) {
			return epochSeconds(time.Now()) + 100, nil
		},
	}
	assert.InDelta(t, epochSeconds(time.Now())+100, c.now(context.Background()), 1)

	// a failed measurement keeps the previous offset
	c.reset()
	c.read = func(context.Context) (float64, error) { return 0, errors.New("down") }
	assert.InDelta(t, epochSeconds(time.Now())+100, c.now(context.Background()), 1)
}

func TestClockReadsOutsideLock(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var reads atomic.Int32
	c := &clock{
		ttl: time.Minute,
		log: utils.Discard(),
		read: func(context.Context) (float64, error) {
			if reads.Add(1) == 1 {
				close(started)
			}
			<-release
			return epochSeconds(time.Now()), nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.now(context.Background())
		}()
	}
	<-started

	// the lock is free while the database is being read
	done := make(chan struct{})
	go func() {
		c.current()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock lock held during measurement")
	}

	close(release)
	wg.Wait()
	assert.LessOrEqual(t, reads.Load(), int32(4))
	_, stale := c.current()
	assert.False(t, stale)
}
