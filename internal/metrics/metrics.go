// Package metrics exposes the Prometheus counters, gauges, and
// histograms the HAL, dispatcher, and backends record against: request
// counts by opcode/status, request latency by opcode, queue depth, NFS slot occupancy, and
// memory-pool exhaustion. The promauto.With(registry) construction
// idiom and metric naming/bucket choices follow the teacher's
// pkg/metrics/prometheus package, generalized from per-cache/per-store
// metrics structs to one Registry shared by every DPFS component,
// using an explicit *prometheus.Registry rather than the global
// default so a test process can spin up multiple independent
// Registries without collector-name collisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every DPFS metric family behind one Prometheus
// registry.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	BytesRead        prometheus.Counter
	BytesWritten     prometheus.Counter
	QueueDepth       *prometheus.GaugeVec
	PoolExhaustions  *prometheus.CounterVec
	SlotWaitDuration *prometheus.HistogramVec
	SlotsInUse       *prometheus.GaugeVec
	NFSCompoundRTT   *prometheus.HistogramVec
}

// New constructs a Registry with every metric family registered against
// a fresh *prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	return &Registry{
		reg: reg,

		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpfs_requests_total",
				Help: "Total FUSE requests processed, by opcode and result status.",
			},
			[]string{"opcode", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dpfs_request_duration_milliseconds",
				Help: "FUSE request handling latency by opcode.",
				Buckets: []float64{
					0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000,
				},
			},
			[]string{"opcode"},
		),
		BytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dpfs_bytes_read_total",
			Help: "Total bytes served via READ replies.",
		}),
		BytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dpfs_bytes_written_total",
			Help: "Total bytes accepted via WRITE requests.",
		}),
		QueueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dpfs_queue_depth",
				Help: "Outstanding requests per virtio queue.",
			},
			[]string{"device_id"},
		),
		PoolExhaustions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpfs_pool_exhaustions_total",
				Help: "Memory-pool Alloc calls that returned nil because the pool was empty.",
			},
			[]string{"pool"},
		),
		SlotWaitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dpfs_nfs_slot_wait_milliseconds",
				Help: "Time spent waiting to claim an NFS session slot.",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500,
				},
			},
			[]string{"connection"},
		),
		SlotsInUse: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dpfs_nfs_slots_in_use",
				Help: "NFS session slots currently claimed, per connection.",
			},
			[]string{"connection"},
		),
		NFSCompoundRTT: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dpfs_nfs_compound_rtt_milliseconds",
				Help: "Round-trip latency of NFS COMPOUND calls by leading operation.",
				Buckets: []float64{
					0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"operation"},
		),
	}
}

// Gatherer exposes the underlying registry for wiring into an HTTP
// /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
