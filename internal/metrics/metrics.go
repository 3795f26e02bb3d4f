// Package metrics registers the gateway's own pipeline-level Prometheus
// collectors, following the sync.Once registration pattern of the
// preprocessor service this gateway was derived from.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EnvelopesProcessed *prometheus.CounterVec
	EnvelopesFiltered  prometheus.Counter
	EnvelopesDLQd      *prometheus.CounterVec
	CommitInvocations  *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	StageLatency       *prometheus.HistogramVec
)

// Register initializes and registers all collectors exactly once. If r is
// nil, prometheus.DefaultRegisterer is used; duplicate registrations are
// ignored.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}

		EnvelopesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "pipeline", Name: "envelopes_processed_total",
			Help: "Envelopes that completed the pipeline and were produced downstream",
		}, []string{"pipeline", "operation"})

		EnvelopesFiltered = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "pipeline", Name: "envelopes_filtered_total",
			Help: "Messages dropped by the consumer's messageSchema filter before reaching a worker",
		})

		EnvelopesDLQd = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "pipeline", Name: "envelopes_dlq_total",
			Help: "Envelopes routed to the DLQ, by error kind",
		}, []string{"kind"})

		CommitInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "pipeline", Name: "commit_invocations_total",
			Help: "Commit handle invocations, by outcome",
		}, []string{"outcome"})

		QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "dispatcher", Name: "queue_depth",
			Help: "Current number of envelopes waiting in a worker pool's bounded queue",
		}, []string{"pipeline"})

		StageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway", Subsystem: "pipeline", Name: "stage_latency_seconds",
			Help:    "Per-stage processing latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"})

		collectors := []prometheus.Collector{
			EnvelopesProcessed, EnvelopesFiltered, EnvelopesDLQd,
			CommitInvocations, QueueDepth, StageLatency,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
