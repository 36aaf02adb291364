package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	records *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		records: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat_notifier",
				Name:      "stream_records_total",
				Help:      "DynamoDB stream records handled, by event kind and status.",
			},
			[]string{"kind", "status"}, // status: ok, error, malformed, panic
		),
	}
}
