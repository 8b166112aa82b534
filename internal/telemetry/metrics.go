package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the business counters. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	ticketsCreated  *prometheus.CounterVec
	numberFallbacks prometheus.Counter
	refunds         *prometheus.CounterVec
	extraMinutes    prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rinkdesk_tickets_created_total",
			Help: "Tickets created, by branch.",
		}, []string{"branch"}),
		numberFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rinkdesk_ticket_number_fallback_total",
			Help: "Ticket numbers issued from the clock because the counter store was unavailable.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rinkdesk_refunds_total",
			Help: "Refunds recorded, by kind.",
		}, []string{"kind"}),
		extraMinutes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rinkdesk_extra_time_minutes_total",
			Help: "Extra play minutes sold.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticketsCreated,
		m.numberFallbacks,
		m.refunds,
		m.extraMinutes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TicketCreated(branchID string) {
	if m != nil {
		m.ticketsCreated.WithLabelValues(branchID).Inc()
	}
}

func (m *Metrics) TicketNumberFallback() {
	if m != nil {
		m.numberFallbacks.Inc()
	}
}

func (m *Metrics) Refund(kind string) {
	if m != nil {
		m.refunds.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ExtraMinutes(minutes int) {
	if m != nil && minutes > 0 {
		m.extraMinutes.Add(float64(minutes))
	}
}
