// Package metrics exposes the front end's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ulift",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ulift",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ulift",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ulift",
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "Registration attempts by final state.",
		},
		[]string{"state"},
	)

	registrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ulift",
			Subsystem: "registration",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of registration attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"state"},
	)

	rosterUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ulift",
			Subsystem: "chat",
			Name:      "roster_updates_total",
			Help:      "user_update events received from the chat service.",
		},
	)

	rosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ulift",
			Subsystem: "chat",
			Name:      "roster_size",
			Help:      "Users in the most recent roster.",
		},
	)

	instances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ulift",
			Subsystem: "session",
			Name:      "form_instances",
			Help:      "Live form instances.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ulift",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		registrations,
		registrationDuration,
		rosterUpdates,
		rosterSize,
		instances,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequest records one finished HTTP request under its route template.
func RecordRequest(method, route string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// RequestStarted tracks in-flight requests; call the returned func when done.
func RequestStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordRegistration records a finished registration attempt.
func RecordRegistration(state string, took time.Duration) {
	if took <= 0 {
		took = time.Millisecond
	}
	registrations.WithLabelValues(state).Inc()
	registrationDuration.WithLabelValues(state).Observe(took.Seconds())
}

// RecordRosterUpdate records a roster replacement of size users.
func RecordRosterUpdate(users int) {
	rosterUpdates.Inc()
	rosterSize.Set(float64(users))
}

// SetInstances reports the number of live form instances.
func SetInstances(n int) { instances.Set(float64(n)) }

// RecordRateLimited counts a refused request.
func RecordRateLimited() { rateLimited.Inc() }

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
