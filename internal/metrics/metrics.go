package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal        *prometheus.CounterVec
	bookingLatency       *prometheus.HistogramVec
	referenceStrategy    *prometheus.CounterVec
	statusChanges        *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtest",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medtest",
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Latency of booking transactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		referenceStrategy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtest",
			Subsystem: "booking",
			Name:      "reference_strategy_total",
			Help:      "Generated references by strategy",
		}, []string{"strategy"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtest",
			Subsystem: "booking",
			Name:      "status_changes_total",
			Help:      "Administrative status changes by target status",
		}, []string{"status"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtest",
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Failed post-commit notifications by channel",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.referenceStrategy, m.statusChanges, m.notificationFailures)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveReferenceStrategy(strategy string) {
	if m == nil {
		return
	}
	m.referenceStrategy.WithLabelValues(strategy).Inc()
}

func (m *BookingMetrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveNotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(channel).Inc()
}
