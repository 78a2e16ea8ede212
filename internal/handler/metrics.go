package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus registry.
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler creates a MetricsHandler over the given registry.
// A nil registry falls back to the default gatherer.
func NewMetricsHandler(reg *prometheus.Registry) *MetricsHandler {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		gatherer = reg
	}
	return &MetricsHandler{
		handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

// Metrics serves GET /metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
