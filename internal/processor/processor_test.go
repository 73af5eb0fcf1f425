package processor

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bdurand/async-http-pool/internal/clientpool"
	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
)

type capturingHandler struct {
	mu        sync.Mutex
	completed []domain.Response
	errored   []error
	retried   []domain.RequestTask
	onDone    func()
}

func (h *capturingHandler) OnComplete(_ domain.RequestTask, resp domain.Response) {
	h.mu.Lock()
	h.completed = append(h.completed, resp)
	h.mu.Unlock()
	if h.onDone != nil {
		h.onDone()
	}
}

func (h *capturingHandler) OnError(_ domain.RequestTask, err error) {
	h.mu.Lock()
	h.errored = append(h.errored, err)
	h.mu.Unlock()
	if h.onDone != nil {
		h.onDone()
	}
}

func (h *capturingHandler) Retry(task domain.RequestTask) bool {
	h.mu.Lock()
	h.retried = append(h.retried, task)
	h.mu.Unlock()
	return true
}

func newTestProcessor(cfg Config) *Processor {
	pool := clientpool.New(clientpool.Config{MaxClients: 8}, nil)
	return New(cfg, pool, nil, nil, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestProcessor_AcceptAndComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	p := newTestProcessor(Config{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          10,
		DefaultTimeout:        5 * time.Second,
		MaxResponseSize:       1 << 20,
	})
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, err := domain.NewRequest(domain.MethodGet, server.URL)
	assert.NoError(t, err)
	task := domain.NewRequestTask(req, handler, nil, nil)

	_, err = p.Enqueue(task)
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.completed) == 1
	})

	assert.Equal(t, http.StatusOK, handler.completed[0].Status)
	assert.Equal(t, "ok", string(handler.completed[0].Body))
	assert.Equal(t, 0, p.InFlightCount())
}

func TestProcessor_CapacityRejection(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	var capacityExceeded int32
	obs := &countingObserver{}

	pool := clientpool.New(clientpool.Config{MaxClients: 8}, nil)
	p := New(Config{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          0,
		DefaultTimeout:        5 * time.Second,
		MaxResponseSize:       1 << 20,
	}, pool, nil, obs, nil)
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, server.URL)

	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)

	waitFor(t, time.Second, func() bool { return p.InFlightCount() == 1 })

	_, err = p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.Error(t, err)
	var capErr *domain.MaxCapacityError
	assert.ErrorAs(t, err, &capErr)

	capacityExceeded = obs.capacityExceededCount()
	assert.GreaterOrEqual(t, capacityExceeded, int32(1))
}

func TestProcessor_DrainWithRetry(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	p := newTestProcessor(Config{
		MaxConcurrentRequests: 2,
		MaxQueueSize:          2,
		DefaultTimeout:        5 * time.Second,
		MaxResponseSize:       1 << 20,
	})
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, server.URL)

	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)
	_, err = p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)

	waitFor(t, time.Second, func() bool { return p.InFlightCount() == 2 })

	assert.NoError(t, p.Stop(100*time.Millisecond))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, 2, len(handler.retried))
	assert.Equal(t, "stopped", p.State())
}

func TestProcessor_RedirectCap(t *testing.T) {
	var server *httptest.Server
	hops := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, server.URL+fmt.Sprintf("/hop%d", hops), http.StatusFound)
	}))
	defer server.Close()

	p := newTestProcessor(Config{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          1,
		DefaultTimeout:        5 * time.Second,
		DefaultMaxRedirects:   2,
		MaxResponseSize:       1 << 20,
	})
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, server.URL)
	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.errored) == 1
	})

	var redirErr *domain.RedirectError
	assert.ErrorAs(t, handler.errored[0], &redirErr)
	assert.Equal(t, domain.RedirectTooMany, redirErr.Kind)
}

func TestProcessor_OversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 5000))
	}))
	defer server.Close()

	p := newTestProcessor(Config{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          1,
		DefaultTimeout:        5 * time.Second,
		MaxResponseSize:       1024,
	})
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, server.URL)
	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.errored) == 1
	})

	var tooLarge *domain.ResponseTooLargeError
	assert.ErrorAs(t, handler.errored[0], &tooLarge)

	// The reactor must keep serving other tasks after an oversized response.
	handler2 := &capturingHandler{}
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	req2, _ := domain.NewRequest(domain.MethodGet, okServer.URL)
	_, err = p.Enqueue(domain.NewRequestTask(req2, handler2, nil, nil))
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		handler2.mu.Lock()
		defer handler2.mu.Unlock()
		return len(handler2.completed) == 1
	})
}

func TestProcessor_OptInHttpError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	pool := clientpool.New(clientpool.Config{MaxClients: 8}, nil)
	p := New(Config{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          1,
		DefaultTimeout:        5 * time.Second,
		MaxResponseSize:       1 << 20,
		RaiseErrorResponses:   true,
	}, pool, nil, nil, nil)
	assert.NoError(t, p.Start())

	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, server.URL)
	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.errored) == 1
	})

	var serverErr *domain.ServerError
	assert.ErrorAs(t, handler.errored[0], &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.Status)
	assert.Equal(t, "boom", string(serverErr.Body))
}

func TestProcessor_NotRunningRejectsEnqueue(t *testing.T) {
	p := newTestProcessor(Config{MaxConcurrentRequests: 1, MaxQueueSize: 1, DefaultTimeout: time.Second})
	handler := &capturingHandler{}
	req, _ := domain.NewRequest(domain.MethodGet, "http://example.invalid")

	_, err := p.Enqueue(domain.NewRequestTask(req, handler, nil, nil))
	assert.Error(t, err)
	var notRunning *domain.NotRunningError
	assert.ErrorAs(t, err, &notRunning)
}

type countingObserver struct {
	mu    sync.Mutex
	count int32
}

func (o *countingObserver) Started() {}
func (o *countingObserver) Stopped() {}
func (o *countingObserver) RequestStarted(domain.TaskID, domain.Request) {}
func (o *countingObserver) RequestEnded(domain.TaskID, ports.Outcome) {}
func (o *countingObserver) Error(error, string) {}
func (o *countingObserver) CapacityExceeded(int, int) {
	o.mu.Lock()
	o.count++
	o.mu.Unlock()
}
func (o *countingObserver) StateTransition(string, string) {}

func (o *countingObserver) capacityExceededCount() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}
