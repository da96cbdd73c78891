package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommsMetrics exposes counters/histograms for the messaging flows.
type CommsMetrics struct {
	inboundTotal   *prometheus.CounterVec
	deliveryTotal  *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewCommsMetrics(reg prometheus.Registerer) *CommsMetrics {
	m := &CommsMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cliniccomms",
			Subsystem: "bot",
			Name:      "inbound_update_total",
			Help:      "Total inbound chat updates",
		}, []string{"kind", "outcome"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cliniccomms",
			Subsystem: "outbound",
			Name:      "delivery_total",
			Help:      "Total outbound delivery attempts",
		}, []string{"action", "status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cliniccomms",
			Subsystem: "bot",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook update processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.deliveryTotal, m.webhookLatency)
	return m
}

func (m *CommsMetrics) ObserveInbound(kind, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *CommsMetrics) ObserveDelivery(action, status string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(action, status).Inc()
}

func (m *CommsMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
