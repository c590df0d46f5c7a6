package recdb

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// SQLStatsCollector exports the connection pool statistics of the write and
// read pools, labelled by pool and catalog.
type SQLStatsCollector struct {
	pools map[string]*sql.DB

	// Pool occupancy
	openConnections *prometheus.Desc
	inUse           *prometheus.Desc
	idle            *prometheus.Desc
	maxOpen         *prometheus.Desc

	// Waits for a free connection
	waitCount    *prometheus.Desc
	waitDuration *prometheus.Desc

	// Connections closed by the pool limits
	maxIdleClosed     *prometheus.Desc
	maxIdleTimeClosed *prometheus.Desc
	maxLifetimeClosed *prometheus.Desc
}

func NewSQLStatsCollector(db *DB) *SQLStatsCollector {
	pools := map[string]*sql.DB{"write": db.write}
	if db.read != db.write {
		pools["read"] = db.read
	}
	labels := []string{"pool"}
	constLabels := prometheus.Labels{"catalog": db.opts.Catalog}
	return &SQLStatsCollector{
		pools: pools,

		openConnections: prometheus.NewDesc(
			"recdb_sql_open_connections",
			"Established connections, in use or idle",
			labels, constLabels,
		),
		inUse: prometheus.NewDesc(
			"recdb_sql_in_use_connections",
			"Connections currently in use",
			labels, constLabels,
		),
		idle: prometheus.NewDesc(
			"recdb_sql_idle_connections",
			"Idle connections",
			labels, constLabels,
		),
		maxOpen: prometheus.NewDesc(
			"recdb_sql_max_open_connections",
			"Configured connection limit, zero for none",
			labels, constLabels,
		),
		waitCount: prometheus.NewDesc(
			"recdb_sql_wait_count_total",
			"Total number of waits for a connection",
			labels, constLabels,
		),
		waitDuration: prometheus.NewDesc(
			"recdb_sql_wait_duration_seconds_total",
			"Total time spent waiting for a connection",
			labels, constLabels,
		),
		maxIdleClosed: prometheus.NewDesc(
			"recdb_sql_max_idle_closed_total",
			"Connections closed due to the idle pool limit",
			labels, constLabels,
		),
		maxIdleTimeClosed: prometheus.NewDesc(
			"recdb_sql_max_idle_time_closed_total",
			"Connections closed due to the idle time limit",
			labels, constLabels,
		),
		maxLifetimeClosed: prometheus.NewDesc(
			"recdb_sql_max_lifetime_closed_total",
			"Connections closed due to the lifetime limit",
			labels, constLabels,
		),
	}
}

func (sc *SQLStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.openConnections
	ch <- sc.inUse
	ch <- sc.idle
	ch <- sc.maxOpen

	ch <- sc.waitCount
	ch <- sc.waitDuration

	ch <- sc.maxIdleClosed
	ch <- sc.maxIdleTimeClosed
	ch <- sc.maxLifetimeClosed
}

func (sc *SQLStatsCollector) Collect(ch chan<- prometheus.Metric) {
	for pool, db := range sc.pools {
		stats := db.Stats()

		ch <- prometheus.MustNewConstMetric(sc.openConnections, prometheus.GaugeValue, float64(stats.OpenConnections), pool)
		ch <- prometheus.MustNewConstMetric(sc.inUse, prometheus.GaugeValue, float64(stats.InUse), pool)
		ch <- prometheus.MustNewConstMetric(sc.idle, prometheus.GaugeValue, float64(stats.Idle), pool)
		ch <- prometheus.MustNewConstMetric(sc.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConnections), pool)

		ch <- prometheus.MustNewConstMetric(sc.waitCount, prometheus.CounterValue, float64(stats.WaitCount), pool)
		ch <- prometheus.MustNewConstMetric(sc.waitDuration, prometheus.CounterValue, stats.WaitDuration.Seconds(), pool)

		ch <- prometheus.MustNewConstMetric(sc.maxIdleClosed, prometheus.CounterValue, float64(stats.MaxIdleClosed), pool)
		ch <- prometheus.MustNewConstMetric(sc.maxIdleTimeClosed, prometheus.CounterValue, float64(stats.MaxIdleTimeClosed), pool)
		ch <- prometheus.MustNewConstMetric(sc.maxLifetimeClosed, prometheus.CounterValue, float64(stats.MaxLifetimeClosed), pool)
	}
}
