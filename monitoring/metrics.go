package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_submitted_total",
			Help: "Requests admitted per event and payment status",
		},
		[]string{"event_id", "payment_status"},
	)

	requestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_transitions_total",
			Help: "Terminal request transitions per event",
		},
		[]string{"event_id", "status"},
	)

	paymentsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Confirmed payments per event",
		},
		[]string{"event_id"},
	)

	queueBucketSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_bucket_size",
			Help: "Current projected bucket sizes per live event",
		},
		[]string{"event_id", "bucket"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_sessions_active",
			Help: "Currently open realtime sessions",
		},
	)
)

// Monitor is the single handle services use to record metrics. A nil
// Monitor is valid and records nothing, which keeps test wiring small.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackSubmission(eventID, paymentStatus string) {
	if m == nil {
		return
	}
	requestsSubmitted.WithLabelValues(eventID, paymentStatus).Inc()
}

func (m *Monitor) TrackTransition(eventID, status string) {
	if m == nil {
		return
	}
	requestTransitions.WithLabelValues(eventID, status).Inc()
}

func (m *Monitor) TrackPaymentConfirmed(eventID string) {
	if m == nil {
		return
	}
	paymentsConfirmed.WithLabelValues(eventID).Inc()
}

// TrackBuckets records the projected bucket sizes of one live event.
func (m *Monitor) TrackBuckets(eventID string, history, waiting, priority int) {
	if m == nil {
		return
	}
	queueBucketSize.WithLabelValues(eventID, "history").Set(float64(history))
	queueBucketSize.WithLabelValues(eventID, "waiting").Set(float64(waiting))
	queueBucketSize.WithLabelValues(eventID, "priority").Set(float64(priority))
}

func (m *Monitor) SessionOpened() {
	if m == nil {
		return
	}
	activeSessions.Inc()
}

func (m *Monitor) SessionClosed() {
	if m == nil {
		return
	}
	activeSessions.Dec()
}
