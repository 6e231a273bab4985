// Package metrics содержит счётчики Prometheus сервиса авторизации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics набор счётчиков. Методы безопасны для nil получателя.
type Metrics struct {
	GateDecisions   *prometheus.CounterVec
	TokensIssued    prometheus.Counter
	EventsPublished *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "gate_decisions_total",
			Help:      "Authorization gate decisions by route class and outcome.",
		}, []string{"class", "outcome"}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "tokens_issued_total",
			Help:      "Session tokens issued.",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "events_published_total",
			Help:      "Domain events handed to the broker by routing key and result.",
		}, []string{"routing_key", "result"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// GateDecision учитывает решение шлюза авторизации.
func (m *Metrics) GateDecision(class, outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(class, outcome).Inc()
}

// TokenIssued учитывает выданный токен.
func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

// EventPublished учитывает попытку публикации события.
func (m *Metrics) EventPublished(routingKey string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(routingKey, result).Inc()
}

// Limited учитывает отклонённый ограничителем запрос.
func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
