// Package metrics implements a ports.ProcessorObserver backed by Prometheus
// counters/gauges/histograms, registered under a caller-supplied registry so
// multiple processors in one binary don't collide on metric names.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
)

const namespace = "async_http_pool"

// Observer implements ports.ProcessorObserver, publishing processor health
// and throughput as Prometheus series.
type Observer struct {
	requestsStarted  prometheus.Counter
	requestsEnded    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	queueDepth       prometheus.Gauge
	inFlightGauge    prometheus.Gauge
	capacityExceeded prometheus.Counter
	handlerErrors    prometheus.Counter
	lifecycleState   *prometheus.GaugeVec

	startedMu sync.Mutex
	started   map[domain.TaskID]time.Time
}

// New builds an Observer and registers its collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose on the process-wide /metrics.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		requestsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_started_total",
			Help: "Total requests the processor began executing.",
		}),
		requestsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_ended_total",
			Help: "Total requests that reached a terminal outcome, by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_duration_seconds",
			Help:    "Wall-clock duration of a request from start to terminal delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Tasks queued but not yet in flight, as of the most recent capacity rejection.",
		}),
		inFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "in_flight_requests",
			Help: "Requests currently executing.",
		}),
		capacityExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capacity_exceeded_total",
			Help: "Times enqueue was rejected for exceeding capacity.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handler_errors_total",
			Help: "Times a TaskHandler callback panicked and was recovered.",
		}),
		lifecycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lifecycle_state",
			Help: "1 for the processor's current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		started: make(map[domain.TaskID]time.Time),
	}

	reg.MustRegister(
		o.requestsStarted,
		o.requestsEnded,
		o.requestDuration,
		o.queueDepth,
		o.inFlightGauge,
		o.capacityExceeded,
		o.handlerErrors,
		o.lifecycleState,
	)

	return o
}

func (o *Observer) Started() {}
func (o *Observer) Stopped() {}

func (o *Observer) RequestStarted(taskID domain.TaskID, _ domain.Request) {
	o.requestsStarted.Inc()
	o.inFlightGauge.Inc()

	o.startedMu.Lock()
	o.started[taskID] = time.Now()
	o.startedMu.Unlock()
}

func (o *Observer) RequestEnded(taskID domain.TaskID, outcome ports.Outcome) {
	o.inFlightGauge.Dec()

	o.startedMu.Lock()
	started, ok := o.started[taskID]
	delete(o.started, taskID)
	o.startedMu.Unlock()

	if ok {
		o.requestDuration.Observe(time.Since(started).Seconds())
	}

	if outcome.Success() {
		o.requestsEnded.WithLabelValues("success").Inc()
	} else {
		o.requestsEnded.WithLabelValues("error").Inc()
	}
}

func (o *Observer) Error(_ error, _ string) {
	o.handlerErrors.Inc()
}

func (o *Observer) CapacityExceeded(queueSize, inFlight int) {
	o.capacityExceeded.Inc()
	o.queueDepth.Set(float64(queueSize))
	o.inFlightGauge.Set(float64(inFlight))
}

func (o *Observer) StateTransition(from, to string) {
	o.lifecycleState.WithLabelValues(from).Set(0)
	o.lifecycleState.WithLabelValues(to).Set(1)
}
