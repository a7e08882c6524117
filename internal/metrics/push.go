package metrics

import "github.com/prometheus/client_golang/prometheus"

// Push delivery results.
const (
	PushSent    = "sent"
	PushExpired = "expired"
	PushFailed  = "failed"
	PushDropped = "dropped"
)

// PushMetrics records web push deliveries.
type PushMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewPushMetrics(reg prometheus.Registerer) *PushMetrics {
	if reg == nil {
		return &PushMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_notifications_total",
		Help: "Web push deliveries, by result.",
	}, []string{"result"})
	reg.MustRegister(deliveries)
	return &PushMetrics{deliveries: deliveries}
}

func (m *PushMetrics) Inc(result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(result)).Inc()
}
