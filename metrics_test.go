package recdb

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegister(t *testing.T) {
	db := openTestDB(t, Options{Catalog: "metrics"})
	reg := prometheus.NewPedanticRegistry()
	for _, c := range Collectors() {
		require.NoError(t, reg.Register(c))
	}
	require.NoError(t, reg.Register(NewSQLStatsCollector(db)))
	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestSQLStatsCollector(t *testing.T) {
	db := openTestDB(t, Options{})
	// read and write share one pool in tests
	assert.Equal(t, 9, testutil.CollectAndCount(NewSQLStatsCollector(db)))
}

func TestRecordCacheMetrics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, Options{})
	s := newArticle(map[string]any{"title": "cached"})
	require.NoError(t, db.Save(ctx, s))

	hits := testutil.ToFloat64(RecordCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(RecordCache.WithLabelValues("miss"))
	for i := 0; i < 3; i++ {
		_, ok, err := db.ReadByID(ctx, s.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, misses+1, testutil.ToFloat64(RecordCache.WithLabelValues("miss")))
	assert.Equal(t, hits+2, testutil.ToFloat64(RecordCache.WithLabelValues("hit")))

	// a write evicts the cached copy
	s.Put("title", "changed")
	require.NoError(t, db.Save(ctx, s))
	row, _, err := db.ReadByID(ctx, s.ID)
	require.NoError(t, err)
	got, err := row.State()
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Get("title"))
}
