package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hdtickets_events_dispatched_total",
		Help: "Total number of domain events dispatched, labelled by event type.",
	}, []string{"event_type"})

	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hdtickets_handler_failures_total",
		Help: "Total number of isolated handler failures, labelled by handler and event type.",
	}, []string{"handler", "event_type"})

	TicketsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hdtickets_tickets_discovered_total",
		Help: "Total number of discovered tickets, labelled by platform.",
	}, []string{"platform"})

	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hdtickets_alerts_triggered_total",
		Help: "Total number of alert rules fired, labelled by alert type.",
	}, []string{"alert_type"})

	PurchasesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hdtickets_purchases_finished_total",
		Help: "Total number of purchases reaching a terminal status, labelled by platform and status.",
	}, []string{"platform", "status"})

	PurchaseStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hdtickets_purchase_step_duration_seconds",
		Help:    "Wall-clock duration of individual purchaser pipeline steps.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"platform", "step"})
)
