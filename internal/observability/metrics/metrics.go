package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the slot lifecycle. All methods are
// nil-safe so callers can run without a registry.
type BookingMetrics struct {
	slotsPublished *prometheus.CounterVec
	claims         *prometheus.CounterVec
	cancellations  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		slotsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotboard",
			Subsystem: "booking",
			Name:      "slots_published_total",
			Help:      "Slot publish attempts by outcome",
		}, []string{"outcome"}), // created, conflict, invalid
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotboard",
			Subsystem: "booking",
			Name:      "claims_total",
			Help:      "Slot claim attempts by outcome",
		}, []string{"outcome"}), // won, lost, not_found
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotboard",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome",
		}, []string{"outcome"}), // allowed, denied_policy, denied_state
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotboard",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Committed status transitions",
		}, []string{"to_status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotboard",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Subscriber notifications by outcome",
		}, []string{"outcome"}), // delivered, deduped, dropped
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotsPublished, m.claims, m.cancellations, m.transitions, m.notifications)
	return m
}

func (m *BookingMetrics) ObservePublish(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.slotsPublished.WithLabelValues(outcome).Add(float64(n))
}

func (m *BookingMetrics) ObserveClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCancellation(outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(toStatus string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(toStatus).Inc()
}

func (m *BookingMetrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
