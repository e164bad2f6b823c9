// Package metrics exposes prometheus counters for identifier allocation,
// appointment lifecycle transitions, ledger merges and notification delivery.
// Every recorder method is safe on a nil receiver so components can run
// without metrics in tests.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinicdesk"

// Merge results.
const (
	MergeInserted = "inserted"
	MergeSkipped  = "skipped"
)

// Notification outcomes.
const (
	NotifyDelivered  = "delivered"
	NotifyPushFailed = "push_failed"
	NotifyFailed     = "failed"
	NotifyDropped    = "dropped"
)

type Metrics struct {
	sequenceConflicts *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	mergeItems        *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	gatherer          prometheus.Gatherer
}

// New registers the clinicdesk collectors on reg. A nil reg uses a fresh
// registry so repeated construction in tests never panics.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		sequenceConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_conflicts_total",
			Help:      "Identifier collisions that forced an atomic unit to be retried",
		}, []string{"namespace"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Committed appointment status transitions",
		}, []string{"from", "to"}),
		mergeItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_merge_items_total",
			Help:      "Candidate bill items seen by merge, by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery outcomes",
		}, []string{"status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.sequenceConflicts, m.transitions, m.mergeItems, m.notifications)
	return m
}

func (m *Metrics) SequenceConflict(ns string) {
	if m == nil {
		return
	}
	m.sequenceConflicts.WithLabelValues(ns).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) MergeItems(inserted, skipped int) {
	if m == nil {
		return
	}
	if inserted > 0 {
		m.mergeItems.WithLabelValues(MergeInserted).Add(float64(inserted))
	}
	if skipped > 0 {
		m.mergeItems.WithLabelValues(MergeSkipped).Add(float64(skipped))
	}
}

func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	if m == nil {
		return func(c echo.Context) error { return echo.ErrNotFound }
	}
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
