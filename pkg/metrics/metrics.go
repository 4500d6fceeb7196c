// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the components report to.
type Recorder interface {
	WebhookDelivery(source, outcome string)
	BrokerCall(tool, outcome string)
	LLMRequest(mode string, d time.Duration, err error)
	Notification(kind, outcome string)
}

// Collector implements Recorder on Prometheus.
type Collector struct {
	deliveries    *prometheus.CounterVec
	brokerCalls   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmbridge_webhook_deliveries_total",
			Help: "Inbound webhook deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
		brokerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmbridge_broker_calls_total",
			Help: "Tool broker calls by tool slug or operation and outcome.",
		}, []string{"tool", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmbridge_llm_request_seconds",
			Help:    "LLM completion latency by response mode and outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"mode", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmbridge_notifications_total",
			Help: "Outbound messaging notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(c.deliveries, c.brokerCalls, c.llmLatency, c.notifications)
	return c
}

func (c *Collector) WebhookDelivery(source, outcome string) {
	c.deliveries.WithLabelValues(source, outcome).Inc()
}

func (c *Collector) BrokerCall(tool, outcome string) {
	c.brokerCalls.WithLabelValues(tool, outcome).Inc()
}

func (c *Collector) LLMRequest(mode string, d time.Duration, err error) {
	c.llmLatency.WithLabelValues(mode, Outcome(err)).Observe(d.Seconds())
}

func (c *Collector) Notification(kind, outcome string) {
	c.notifications.WithLabelValues(kind, outcome).Inc()
}

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Nop discards everything.
type Nop struct{}

func (Nop) WebhookDelivery(string, string)          {}
func (Nop) BrokerCall(string, string)               {}
func (Nop) LLMRequest(string, time.Duration, error) {}
func (Nop) Notification(string, string)             {}
