package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OrderMetrics struct {
	OrdersCreated *prometheus.CounterVec
	Reservations  *prometheus.CounterVec
	Compensations prometheus.Counter
}

func NewOrderMetrics(service string) *OrderMetrics {
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: service,
		Name:      "orders_total",
		Help:      "Order creation attempts by outcome.",
	}, []string{"outcome"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: service,
		Name:      "stock_reservations_total",
		Help:      "Stock reservation calls by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: service,
		Name:      "compensation_releases_total",
		Help:      "Stock releases issued while rolling back a failed order.",
	})

	prometheus.MustRegister(created, reservations, compensations)
	return &OrderMetrics{
		OrdersCreated: created,
		Reservations:  reservations,
		Compensations: compensations,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
