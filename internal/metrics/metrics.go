package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages inserted by Put, per relation
	MessagesPut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tq_messages_put_total",
			Help: "Total number of messages put",
		},
		[]string{"route"},
	)

	// Messages claimed by Get, per relation
	MessagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tq_messages_fetched_total",
			Help: "Total number of messages fetched",
		},
		[]string{"route"},
	)

	MessagesAcked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tq_messages_acked_total",
			Help: "Total number of messages acknowledged",
		},
	)

	MessagesRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tq_messages_retried_total",
			Help: "Total number of failed messages scheduled for retry",
		},
	)

	MessagesDeadlettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tq_messages_deadlettered_total",
			Help: "Total number of messages moved to the deadletter relation",
		},
	)

	MessagesRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tq_messages_requeued_total",
			Help: "Total number of deadletter messages moved back to the queue",
		},
	)

	MessagesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tq_messages_pruned_total",
			Help: "Total number of acknowledged messages deleted by pruning",
		},
	)

	PruneDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tq_prune_duration_seconds",
			Help:    "Time taken by a prune pass, compaction included",
			Buckets: prometheus.DefBuckets,
		},
	)
)
