package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue store round trips by operation and outcome.
	QueueOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "musico",
			Subsystem: "queue",
			Name:      "store_operations_total",
			Help:      "Total queue store operations",
		},
		[]string{"operation", "status"},
	)

	RelayFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "musico",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Total inbound relay frames by namespace, event and result",
		},
		[]string{"namespace", "event", "result"},
	)

	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "musico",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Currently open relay connections",
		},
		[]string{"namespace"},
	)

	RelaySlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "musico",
			Subsystem: "relay",
			Name:      "slow_consumers_total",
			Help:      "Connections dropped because their send buffer was full",
		},
	)
)

// RecordQueueOp records the outcome of a queue store call.
func RecordQueueOp(operation string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	QueueOpsTotal.WithLabelValues(operation, status).Inc()
}

// RecordFrame records an inbound relay frame.
func RecordFrame(namespace, event, result string) {
	RelayFramesTotal.WithLabelValues(namespace, event, result).Inc()
}
