package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the admission and order flows.
// All collectors are registered on the default registry and served on /metrics.
type Metrics struct {
	QueueEntered    *prometheus.CounterVec
	QueuePromotions *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	WorkingSlots    *prometheus.GaugeVec

	SeatLockAttempts  *prometheus.CounterVec
	SeatLockConflicts *prometheus.CounterVec

	OrderTransitions  *prometheus.CounterVec
	WebhookRejections prometheus.Counter
	Compensations     *prometheus.CounterVec

	HTTPDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		QueueEntered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "queue",
			Name:      "entered_total",
			Help:      "Waiting-room entries, including idempotent re-entries.",
		}, []string{"event_id"}),

		QueuePromotions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "queue",
			Name:      "promotions_total",
			Help:      "Users promoted from the waiting queue to a working slot.",
		}, []string{"event_id"}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tixgate",
			Subsystem: "queue",
			Name:      "waiting_depth",
			Help:      "Current size of the waiting queue.",
		}, []string{"event_id"}),

		WorkingSlots: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tixgate",
			Subsystem: "queue",
			Name:      "working_slots",
			Help:      "Currently occupied working slots.",
		}, []string{"event_id"}),

		SeatLockAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "seatlock",
			Name:      "attempts_total",
			Help:      "Seat lock acquisition attempts.",
		}, []string{"result"}),

		SeatLockConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "seatlock",
			Name:      "conflicts_total",
			Help:      "Seats that blocked an all-or-nothing acquisition.",
		}, []string{"event_schedule_id"}),

		OrderTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order saga state transitions.",
		}, []string{"from", "to"}),

		WebhookRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "orders",
			Name:      "webhook_rejections_total",
			Help:      "Webhooks rejected by signature or timestamp checks.",
		}),

		Compensations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tixgate",
			Subsystem: "orders",
			Name:      "compensations_total",
			Help:      "Payment compensation attempts by outcome.",
		}, []string{"outcome"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tixgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
