// Package metrics implements Prometheus metrics for the capture pipeline,
// mirroring the teacher's internal/metrics/metrics.go (promauto-registered
// vectors, one var block) but covering this repo's domain: queue depth,
// consumer batching, capture throughput and store errors instead of the
// teacher's multi-task/reporter metrics.
//
// All collectors below are registered and exported on /metrics, but the
// pipeline currently updates only CapturedPacketsTotal (from the Producer);
// nothing in this repo sets the queue, consumer, classifier, store,
// supervisor or GeoIP collectors, so they stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturedPacketsTotal counts raw packets handed off by the Capturer (C3).
	CapturedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_captured_packets_total",
			Help: "Total number of packets captured off the wire",
		},
		[]string{"interface"},
	)

	// QueueDepth tracks DynamicQueue occupancy for each half of the
	// DoubleBufferQueue (C1/C2).
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otus_queue_depth",
			Help: "Current DynamicQueue length",
		},
		[]string{"queue"}, // "active" | "processing"
	)

	// QueueCapacity tracks the current resized max_capacity per queue half.
	QueueCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otus_queue_capacity",
			Help: "Current DynamicQueue max capacity after resize",
		},
		[]string{"queue"},
	)

	// QueueDroppedTotal counts RawPackets dropped at enqueue because the
	// active queue was full at max_capacity.
	QueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_queue_dropped_total",
			Help: "Total number of packets dropped because the queue was full",
		},
	)

	// QueueSwapsTotal counts DoubleBufferQueue active/processing swaps.
	QueueSwapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_queue_swaps_total",
			Help: "Total number of double-buffer swap events",
		},
	)

	// ConsumerBatchSize observes the adaptive batch size the consumer
	// coordinator (C6) reads per cycle.
	ConsumerBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otus_consumer_batch_size",
			Help:    "Distribution of batch sizes read by the consumer coordinator",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ConsumerProcessingSeconds observes per-batch classify+persist latency.
	ConsumerProcessingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otus_consumer_processing_seconds",
			Help:    "Time spent classifying and persisting one batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// ConsumerProcessedPacketsTotal counts packets that completed the
	// classify+persist path.
	ConsumerProcessedPacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_consumer_processed_packets_total",
			Help: "Total number of packets classified and persisted",
		},
	)

	// ClassifiedProtocolTotal counts persisted records by resolved protocol,
	// the Prometheus-facing view of ProtocolDistribution (C8).
	ClassifiedProtocolTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_classified_protocol_total",
			Help: "Total number of persisted records by protocol",
		},
		[]string{"protocol"},
	)

	// StoreErrorsTotal counts store-adapter (C7) operation failures.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_store_errors_total",
			Help: "Total number of store adapter errors",
		},
		[]string{"operation"},
	)

	// SupervisorRunning reports whether the supervisor currently considers
	// the pipeline running (1) or stopped (0).
	SupervisorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otus_supervisor_running",
			Help: "Whether the capture pipeline is currently running",
		},
	)

	// GeoIPAbandoned is the gauge for the GeoIP reader having given up after
	// a missing or unreadable database file (1 = given up).
	GeoIPAbandoned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otus_geoip_abandoned",
			Help: "1 once the GeoIP reader has permanently given up",
		},
	)
)
