package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerLabel = "layer"
)

var (
	frameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_frame_duration_seconds",
		Help:    "The time spent computing a frame.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .016, .025, .05, .1},
	})

	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_frames_total",
		Help: "The total number of computed frames.",
	})

	pendingCommands = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_pending_commands",
		Help: "The number of commands waiting for their result.",
	})

	displayedNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_displayed_nodes",
		Help: "The number of displayed nodes.",
	}, []string{layerLabel})

	visibleNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_visible_nodes",
		Help: "The number of nodes that passed culling.",
	}, []string{layerLabel})

	evictedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_evicted_nodes_total",
		Help: "The total number of nodes destroyed after staying hidden.",
	}, []string{layerLabel})
)

func instrumentFrame(f Frame) {
	frameLatency.Observe(f.Duration.Seconds())
	framesTotal.Inc()
	pendingCommands.Set(float64(f.PendingCommands))
}

func instrumentLayer(lf LayerFrame) {
	labels := prometheus.Labels{layerLabel: lf.Name}
	displayedNodes.With(labels).Set(float64(len(lf.Displayed)))
	visibleNodes.With(labels).Set(float64(lf.VisibleCount))
}

func instrumentEvictedNodes(layer string, count int) {
	evictedNodes.
		With(prometheus.Labels{layerLabel: layer}).
		Add(float64(count))
}
