package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "booking_attempts_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	raceLosses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "booking_race_total",
			Help:      "Count of post-commit race resolutions by side.",
		},
		[]string{"side"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "booking_cancelled_total",
			Help:      "Count of cancellations by initiator.",
		},
		[]string{"by"},
	)

	completions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "booking_completed_total",
			Help:      "Count of appointments moved to completed.",
		},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "day_cache_requests_total",
			Help:      "Count of day schedule reads by cache result.",
		},
		[]string{"result"},
	)

	sourceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salonbot",
			Name:      "calendar_source_duration_seconds",
			Help:      "Latency of calendar source calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salonbot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, raceLosses, cancellations, completions, cacheRequests, sourceLatency,
			httpRequests, httpDuration)
	})
}

func IncBookingAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func IncRace(side string) {
	raceLosses.WithLabelValues(side).Inc()
}

func IncCancelled(by string) {
	cancellations.WithLabelValues(by).Inc()
}

func AddCompleted(n int) {
	if n > 0 {
		completions.Add(float64(n))
	}
}

func IncCacheRequest(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

func ObserveSource(op string, seconds float64) {
	sourceLatency.WithLabelValues(op).Observe(seconds)
}

func ObserveHTTP(route string, code int, seconds float64) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
