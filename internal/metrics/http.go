package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler that serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware wraps an HTTP handler to collect request count, duration
// and in-flight requests.
//
// Usage:
//
//	mux.Handle("/v1/", metrics.HTTPMiddleware(collector, apiMux))
func HTTPMiddleware(c *Collector, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(c.HTTPInFlight,
		promhttp.InstrumentHandlerDuration(c.HTTPRequestDuration,
			promhttp.InstrumentHandlerCounter(c.HTTPRequests, next),
		),
	)
}
