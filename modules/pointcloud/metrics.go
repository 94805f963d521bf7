package pointcloud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerLabel = "layer"
)

var (
	displayedPoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pointcloud_displayed_points",
		Help: "The number of points of the displayed nodes, before the budget applies.",
	}, []string{layerLabel})

	pointBudgetWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pointcloud_budget_weight",
		Help: "The fraction of the displayed points that is drawn.",
	}, []string{layerLabel})
)

func instrumentDisplayedPoints(layer string, total int, weight float64) {
	labels := prometheus.Labels{layerLabel: layer}
	displayedPoints.With(labels).Set(float64(total))
	pointBudgetWeight.With(labels).Set(weight)
}
