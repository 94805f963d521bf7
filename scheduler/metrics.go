package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	protocolLabel = "protocol"
	outcomeLabel  = "outcome"

	outcomeLoaded       = "loaded"
	outcomeFailed       = "failed"
	outcomeCancelled    = "cancelled"
	outcomeCacheHit     = "cache_hit"
	outcomeDeduplicated = "deduplicated"
)

var (
	schedulerCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_total",
		Help: "The total number of scheduled commands by outcome.",
	}, []string{protocolLabel, outcomeLabel})

	schedulerSharedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_shared_calls_total",
		Help: "The total number of provider calls shared between commands.",
	}, []string{protocolLabel})

	schedulerCommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "scheduler_command_latency",
		Help: "The time between a command dispatch and its commit.",
	}, []string{protocolLabel})

	schedulerQueuedCommands = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_queued_commands",
		Help: "The number of commands waiting for a worker.",
	})

	schedulerInFlightCommands = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_in_flight_commands",
		Help: "The number of commands being executed.",
	})
)

func instrumentCommand(protocol, outcome string) {
	schedulerCommands.
		With(prometheus.Labels{
			protocolLabel: protocol,
			outcomeLabel:  outcome,
		}).
		Inc()
}

func instrumentSharedCall(protocol string) {
	schedulerSharedCalls.
		With(prometheus.Labels{protocolLabel: protocol}).
		Inc()
}

func instrumentLatency(protocol string, d time.Duration) {
	schedulerCommandLatency.
		With(prometheus.Labels{protocolLabel: protocol}).
		Observe(d.Seconds())
}

func instrumentQueue(queued, inFlight int) {
	schedulerQueuedCommands.Set(float64(queued))
	schedulerInFlightCommands.Set(float64(inFlight))
}
