// Package metrics exposes controller counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "home_security"

type Metrics struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	statusMessages *prometheus.CounterVec
	broadcasts     prometheus.Counter
	droppedObs     prometheus.Counter
	observers      prometheus.Gauge
	busConnected   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handed to the bus bridge, by intent and result.",
		}, []string{"intent", "result"}),
		statusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_messages_total",
			Help:      "Status messages received from the bus, by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events fanned out to all observers.",
		}),
		droppedObs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observers_dropped_total",
			Help:      "Observers disconnected because their send buffer was full.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Currently connected observers.",
		}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_connected",
			Help:      "1 while the bus bridge is connected.",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.statusMessages,
		m.broadcasts,
		m.droppedObs,
		m.observers,
		m.busConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CommandPublished(intent, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(intent, result).Inc()
}

func (m *Metrics) StatusMessage(result string) {
	if m == nil {
		return
	}
	m.statusMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) ObserverDropped() {
	if m == nil {
		return
	}
	m.droppedObs.Inc()
}

func (m *Metrics) ObserverCount(n int) {
	if m == nil {
		return
	}
	m.observers.Set(float64(n))
}

func (m *Metrics) BusConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.busConnected.Set(1)
	} else {
		m.busConnected.Set(0)
	}
}
