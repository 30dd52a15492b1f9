package middleware

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/Alturino/storefront/internal/metrics"
)

const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template so path
// parameters do not explode label cardinality.
func Metrics(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured := httpsnoop.CaptureMetrics(next, w, r)
			m.ObserveRequest(routeTemplate(r), r.Method, captured.Code, captured.Duration)
		})
	}
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return template
}
