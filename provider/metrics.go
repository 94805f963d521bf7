package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	protocolLabel = "protocol"
)

var (
	fetchedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_fetched_bytes_total",
		Help: "The total number of bytes fetched by providers.",
	}, []string{protocolLabel})
)

func instrumentFetchedBytes(protocol string, size int) {
	fetchedBytes.
		With(prometheus.Labels{protocolLabel: protocol}).
		Add(float64(size))
}
