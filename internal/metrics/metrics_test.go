package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
)

func TestObserver_RequestLifecycleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)

	req, _ := domain.NewRequest(domain.MethodGet, "https://example.com")
	taskID := domain.NewTaskID()

	obs.RequestStarted(taskID, req)
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.requestsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.inFlightGauge))

	obs.RequestEnded(taskID, ports.Outcome{Response: domain.NewResponse(200, domain.NewHttpHeaders(), nil, domain.MethodGet, "https://example.com", nil)})
	assert.Equal(t, float64(0), testutil.ToFloat64(obs.inFlightGauge))
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.requestsEnded.WithLabelValues("success")))
}

func TestObserver_CapacityExceededIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)

	obs.CapacityExceeded(3, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.capacityExceeded))
	assert.Equal(t, float64(3), testutil.ToFloat64(obs.queueDepth))
}

func TestObserver_HandlerPanicIncrementsErrorCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)

	obs.Error(assertError{}, "handler_panic")
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.handlerErrors))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
