// Package metrics exposes scalemq runtime observability data through a
// Prometheus registry, adapted from the teacher's
// internal/metrics/prometheus.go: same registry/MustRegister/
// nil-guarded-package-func/GaugeFunc-uptime shape, repointed from
// invocation/VM-pool signals onto queue depth, put/get outcomes,
// readiness kicks, event-bus delivery, circuit breaker state, and
// admission-control decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth    *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec

	putTotal *prometheus.CounterVec
	getTotal *prometheus.CounterVec

	kicksTotal               *prometheus.CounterVec
	notifierInvocationsTotal *prometheus.CounterVec

	eventsSubmittedTotal  *prometheus.CounterVec
	eventDeliveryDuration *prometheus.HistogramVec
	eventListenersInvoked *prometheus.HistogramVec

	circuitBreakerState      *prometheus.GaugeVec
	circuitBreakerTripsTotal *prometheus.CounterVec

	admissionTotal *prometheus.CounterVec

	uptime prometheus.GaugeFunc
}

var defaultBuckets = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000}

var global *Metrics

var startTime = time.Now()

// Init initializes the global metrics registry under namespace. Safe to
// call once at daemon startup; later calls replace the global instance.
func Init(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "queue_depth", Help: "Current MsgQueue occupancy by socket and direction"},
			[]string{"socket", "direction"},
		),
		queueCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "queue_capacity", Help: "Current MsgQueue capacity by socket and direction"},
			[]string{"socket", "direction"},
		),
		putTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "put_total", Help: "Total MsgQueue.Put calls by socket, direction, and result"},
			[]string{"socket", "direction", "result"},
		),
		getTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "get_total", Help: "Total MsgQueue.Get calls by socket, direction, and result"},
			[]string{"socket", "direction", "result"},
		),
		kicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "kicks_total", Help: "Total readiness kicks delivered by socket, direction, and signal"},
			[]string{"socket", "direction", "signal"},
		),
		notifierInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "notifier_invocations_total", Help: "Total notifier callback invocations by socket and direction"},
			[]string{"socket", "direction"},
		),
		eventsSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "events_submitted_total", Help: "Total events submitted to a socket's event bus"},
			[]string{"socket", "event_type"},
		),
		eventDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "event_delivery_milliseconds", Help: "Submit-to-done latency for event bus delivery", Buckets: buckets},
			[]string{"event_type"},
		),
		eventListenersInvoked: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "event_listeners_invoked", Help: "Number of listeners invoked per delivered event", Buckets: []float64{0, 1, 2, 4, 8, 16, 32}},
			[]string{"event_type"},
		),
		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "Current circuit breaker state by endpoint (0=closed, 1=open, 2=half_open)"},
			[]string{"endpoint"},
		),
		circuitBreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "circuit_breaker_trips_total", Help: "Total circuit breaker state transitions by endpoint"},
			[]string{"endpoint", "to_state"},
		),
		admissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "admission_total", Help: "Total admission-control decisions by socket and result"},
			[]string{"socket", "result"},
		),
	}

	m.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: "uptime_seconds", Help: "Time since the metrics subsystem started"},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	registry.MustRegister(
		m.queueDepth,
		m.queueCapacity,
		m.putTotal,
		m.getTotal,
		m.kicksTotal,
		m.notifierInvocationsTotal,
		m.eventsSubmittedTotal,
		m.eventDeliveryDuration,
		m.eventListenersInvoked,
		m.circuitBreakerState,
		m.circuitBreakerTripsTotal,
		m.admissionTotal,
		m.uptime,
	)

	global = m
}

// Handler returns an http.Handler serving the registry in the
// Prometheus exposition format, or nil if Init hasn't run.
func Handler() http.Handler {
	if global == nil {
		return nil
	}
	return promhttp.HandlerFor(global.registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records a MsgQueue's current occupancy.
func SetQueueDepth(socket, direction string, depth int) {
	if global == nil {
		return
	}
	global.queueDepth.WithLabelValues(socket, direction).Set(float64(depth))
}

// SetQueueCapacity records a MsgQueue's current capacity (changes on Resize).
func SetQueueCapacity(socket, direction string, capacity int) {
	if global == nil {
		return
	}
	global.queueCapacity.WithLabelValues(socket, direction).Set(float64(capacity))
}

// RecordPut records the outcome of a MsgQueue.Put call.
func RecordPut(socket, direction, result string) {
	if global == nil {
		return
	}
	global.putTotal.WithLabelValues(socket, direction, result).Inc()
}

// RecordGet records the outcome of a MsgQueue.Get call.
func RecordGet(socket, direction, result string) {
	if global == nil {
		return
	}
	global.getTotal.WithLabelValues(socket, direction, result).Inc()
}

// RecordKick records a readiness kick delivered to a notifier, signal
// being "can_put" or "can_get".
func RecordKick(socket, direction, signal string) {
	if global == nil {
		return
	}
	global.kicksTotal.WithLabelValues(socket, direction, signal).Inc()
}

// RecordNotifierInvocation records one notifier callback execution.
func RecordNotifierInvocation(socket, direction string) {
	if global == nil {
		return
	}
	global.notifierInvocationsTotal.WithLabelValues(socket, direction).Inc()
}

// RecordEventSubmitted records an event submission to a socket's bus.
func RecordEventSubmitted(socket, eventType string) {
	if global == nil {
		return
	}
	global.eventsSubmittedTotal.WithLabelValues(socket, eventType).Inc()
}

// RecordEventDelivery records submit-to-done latency and listener fan-out
// for one delivered event.
func RecordEventDelivery(eventType string, d time.Duration, listenerCount int) {
	if global == nil {
		return
	}
	global.eventDeliveryDuration.WithLabelValues(eventType).Observe(float64(d.Milliseconds()))
	global.eventListenersInvoked.WithLabelValues(eventType).Observe(float64(listenerCount))
}

// SetCircuitBreakerState sets the breaker state gauge for an endpoint.
// state: 0=closed, 1=open, 2=half_open.
func SetCircuitBreakerState(endpoint string, state int) {
	if global == nil {
		return
	}
	global.circuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker state transition.
func RecordCircuitBreakerTrip(endpoint, toState string) {
	if global == nil {
		return
	}
	global.circuitBreakerTripsTotal.WithLabelValues(endpoint, toState).Inc()
}

// RecordAdmission records an admission-control decision ("allowed" or
// "throttled").
func RecordAdmission(socket, result string) {
	if global == nil {
		return
	}
	global.admissionTotal.WithLabelValues(socket, result).Inc()
}
