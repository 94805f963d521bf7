package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerLabel = "layer"
)

var (
	layerNodeCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "layer_node_count",
		Help: "The number of materialized nodes.",
	}, []string{layerLabel})

	layerNodeCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_node_created_total",
		Help: "The total number of created nodes.",
	}, []string{layerLabel})

	layerNodeDestroyedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_node_destroyed_total",
		Help: "The total number of destroyed nodes.",
	}, []string{layerLabel})
)

func instrumentIncreaseNodeGauge(layer string) {
	layerNodeCount.
		With(prometheus.Labels{layerLabel: layer}).
		Inc()
	layerNodeCreatedTotal.
		With(prometheus.Labels{layerLabel: layer}).
		Inc()
}

func instrumentDecreaseNodeGauge(layer string) {
	layerNodeCount.
		With(prometheus.Labels{layerLabel: layer}).
		Dec()
}

func instrumentCountDestroyedNode(layer string) {
	layerNodeDestroyedTotal.
		With(prometheus.Labels{layerLabel: layer}).
		Inc()
}
