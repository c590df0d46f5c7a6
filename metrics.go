package recdb

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/symbols"
)

var WriteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "recdb",
	Subsystem: "write",
	Name:      "duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"op"})

var Retries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "write",
	Name:      "retries",
}, []string{"op", "reason"})

var ReadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "recdb",
	Subsystem: "read",
	Name:      "duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500, 1000},
}, []string{"op"})

var ReadRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "read",
	Name:      "rows",
}, []string{"op"})

var RecordCache = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recdb",
	Subsystem: "read",
	Name:      "record_cache",
}, []string{"result"})

var ClockOffset = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "recdb",
	Name:      "clock_offset_seconds",
})

// Collectors lists every metric of the module for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		WriteDuration,
		Retries,
		ReadDuration,
		ReadRows,
		RecordCache,
		ClockOffset,
		symbols.Lookups,
		symbols.Created,
		indexes.IndexRows,
		indexes.IndexDuplicates,
		indexes.IndexDuration,
	}
}
