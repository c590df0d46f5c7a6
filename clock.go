package recdb

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/drpcorg/recdb/utils"
)

// clock follows the database clock: the offset between database and local
// time is measured once per ttl and added to local time. Offsets are in
// seconds.
type clock struct {
	ttl  time.Duration
	read func(ctx context.Context) (float64, error)
	log  utils.Logger

	// concurrent callers share one measurement
	flight singleflight.Group

	mu       sync.Mutex
	offset   float64
	measured time.Time
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func (c *clock) reset() {
	c.mu.Lock()
	c.measured = time.Time{}
	c.mu.Unlock()
}

func (c *clock) current() (offset float64, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, c.measured.IsZero() || time.Since(c.measured) > c.ttl
}

// now is the database time in epoch seconds. The database is read without
// holding the lock; when it cannot be read the last known offset is kept.
func (c *clock) now(ctx context.Context) float64 {
	offset, stale := c.current()
	if stale {
		v, _, _ := c.flight.Do("measure", func() (any, error) {
			local := time.Now()
			remote, err := c.read(ctx)
			if err != nil {
				c.log.WarnCtx(ctx, "cannot read database clock", "err", err)
				return offset, nil
			}
			measured := remote - epochSeconds(local)
			c.mu.Lock()
			c.offset, c.measured = measured, local
			c.mu.Unlock()
			ClockOffset.Set(measured)
			return measured, nil
		})
		offset = v.(float64)
	}
	return epochSeconds(time.Now()) + offset
}

func (db *DB) readClock(ctx context.Context) (float64, error) {
	var remote float64
	err := db.read.QueryRowContext(ctx, db.opts.Dialect.NowSeconds()).Scan(&remote)
	return remote, err
}

// nowSeconds is the database time in epoch seconds, the unit of
// RecordUpdate.updateDate.
func (db *DB) nowSeconds(ctx context.Context) float64 {
	return db.clock.now(ctx)
}
