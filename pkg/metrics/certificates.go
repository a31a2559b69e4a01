package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CertificateMetrics counts registry lifecycle activity.
type CertificateMetrics struct {
	lifecycle     *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// NewCertificateMetrics registers the certificate counters on reg. A nil registerer yields a no-op recorder.
func NewCertificateMetrics(reg prometheus.Registerer) *CertificateMetrics {
	if reg == nil {
		return &CertificateMetrics{}
	}
	lifecycle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_operations_total",
		Help: "Certificate lifecycle operations by kind.",
	}, []string{"operation"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_verifications_total",
		Help: "Verification lookups by outcome.",
	}, []string{"result"})
	reg.MustRegister(lifecycle, verifications)
	return &CertificateMetrics{lifecycle: lifecycle, verifications: verifications}
}

// IncOperation records a successful issue/update/revoke/delete/expire.
func (m *CertificateMetrics) IncOperation(operation string) {
	if m == nil || m.lifecycle == nil {
		return
	}
	m.lifecycle.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncVerification records a verification attempt; result is valid, invalid or not_found.
func (m *CertificateMetrics) IncVerification(result string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(result)).Inc()
}

// OutboxMetrics tracks the publisher loop.
type OutboxMetrics struct {
	published   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher counters on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_letters_total",
		Help: "Outbox events moved to the dead letter table.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(published, failed, deadLetters)
	return &OutboxMetrics{published: published, failed: failed, deadLetters: deadLetters}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLetter(eventType, reason string) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
