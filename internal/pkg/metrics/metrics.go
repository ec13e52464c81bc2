package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatfox"

// Metrics holds the Prometheus instrumentation of the entitlement pipeline.
type Metrics struct {
	cacheLookups      *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	entitlementChecks *prometheus.CounterVec
	usageRecorded     *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, registered with the default
// Prometheus registry on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
		instance.MustRegister(prometheus.DefaultRegisterer)
	})
	return instance
}

// New creates unregistered metrics. Tests use it with their own registry.
func New() *Metrics {
	return &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "In-process cache lookups by cache namespace and result",
			},
			[]string{"cache", "result"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "webhook_events_total",
				Help:      "Billing webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		entitlementChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "entitlements",
				Name:      "checks_total",
				Help:      "Pro status checks by result",
			},
			[]string{"result"},
		),
		usageRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "recorded_total",
				Help:      "Recorded usage by kind",
			},
			[]string{"kind"},
		),
	}
}

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.cacheLookups, m.webhookEvents, m.entitlementChecks, m.usageRecorded)
}

// RecordCacheLookup counts a hit or miss of a cache namespace.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(sanitizeLabel(cache), result).Inc()
}

// RecordWebhook counts a webhook delivery outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

// RecordEntitlementCheck counts a pro status answer.
func (m *Metrics) RecordEntitlementCheck(entitled bool) {
	if m == nil {
		return
	}
	result := "free"
	if entitled {
		result = "pro"
	}
	m.entitlementChecks.WithLabelValues(result).Inc()
}

// RecordUsage counts one recorded usage of kind.
func (m *Metrics) RecordUsage(kind string) {
	if m == nil {
		return
	}
	m.usageRecorded.WithLabelValues(sanitizeLabel(kind)).Inc()
}

func sanitizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, " ", "_")
}
