package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "comanda"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector is a prometheus.Collector for the terminal agent. A nil
// *Collector is valid and records nothing.
type Collector struct {
	eventsReceived     *prometheus.CounterVec
	eventsDebounced    *prometheus.CounterVec
	invalidations      *prometheus.CounterVec
	mutations          *prometheus.CounterVec
	prints             *prometheus.CounterVec
	connectionState    prometheus.Gauge
	historyDivergences prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "realtime_events_received_total",
				Help:      "Realtime events received, by topic.",
			}, []string{"topic"},
		),
		eventsDebounced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "realtime_events_debounced_total",
				Help:      "Realtime events dropped inside the debounce window, by topic.",
			}, []string{"topic"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "collection_invalidations_total",
				Help:      "Collections marked stale, by collection.",
			}, []string{"collection"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "order_mutations_total",
				Help:      "Order mutations, by operation and outcome.",
			}, []string{"operation", "outcome"},
		),
		prints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "print_jobs_total",
				Help:      "Print jobs submitted, by document kind and outcome.",
			}, []string{"kind", "outcome"},
		),
		connectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "realtime_connection_state",
				Help:      "Realtime connection state: 0 disconnected, 1 connecting, 2 connected.",
			},
		),
		historyDivergences: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "kitchen_history_divergences_total",
				Help:      "Confirmed kitchen batches that changed between refetches.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.eventsReceived.Describe(ch)
	c.eventsDebounced.Describe(ch)
	c.invalidations.Describe(ch)
	c.mutations.Describe(ch)
	c.prints.Describe(ch)
	c.connectionState.Describe(ch)
	c.historyDivergences.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.eventsReceived.Collect(ch)
	c.eventsDebounced.Collect(ch)
	c.invalidations.Collect(ch)
	c.mutations.Collect(ch)
	c.prints.Collect(ch)
	c.connectionState.Collect(ch)
	c.historyDivergences.Collect(ch)
}

func (c *Collector) EventReceived(topic string) {
	if c == nil {
		return
	}
	c.eventsReceived.WithLabelValues(topic).Inc()
}

func (c *Collector) EventDebounced(topic string) {
	if c == nil {
		return
	}
	c.eventsDebounced.WithLabelValues(topic).Inc()
}

func (c *Collector) Invalidated(collection string) {
	if c == nil {
		return
	}
	c.invalidations.WithLabelValues(collection).Inc()
}

func (c *Collector) Mutation(operation string, err error) {
	if c == nil {
		return
	}
	c.mutations.WithLabelValues(operation, outcome(err)).Inc()
}

func (c *Collector) Printed(kind string, err error) {
	if c == nil {
		return
	}
	c.prints.WithLabelValues(kind, outcome(err)).Inc()
}

func (c *Collector) SetConnectionState(state int) {
	if c == nil {
		return
	}
	c.connectionState.Set(float64(state))
}

func (c *Collector) HistoryDiverged() {
	if c == nil {
		return
	}
	c.historyDivergences.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// NewRegistry returns a registry holding c plus the Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if c != nil {
		reg.MustRegister(c)
	}
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
