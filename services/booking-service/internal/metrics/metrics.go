package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonbook"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Bookings accepted, by initial status.",
		},
		[]string{"status"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Booking requests rejected, by reason.",
		},
		[]string{"reason"},
	)

	statusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changed_total",
			Help:      "Booking status transitions, by target status.",
		},
		[]string{"status"},
	)

	availabilityCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups, by result.",
		},
		[]string{"result"},
	)

	operationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_operation_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	verification = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_total",
			Help:      "Verification code events, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics with the default registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingRejected, statusChanged, availabilityCache, operationSeconds, verification)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncStatusChanged(status string) {
	statusChanged.WithLabelValues(status).Inc()
}

func IncAvailabilityCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	availabilityCache.WithLabelValues(result).Inc()
}

// ObserveSince records the time elapsed since start for operation.
func ObserveSince(operation string, start time.Time) {
	operationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func IncVerification(outcome string) {
	verification.WithLabelValues(outcome).Inc()
}
