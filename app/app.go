// Package app wires the engine's internal packages into a runnable demo
// ingress service: an HTTP surface that accepts "run this request" jobs,
// enqueues them on the Processor, and exposes their outcome, health, and
// Prometheus metrics.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdurand/async-http-pool/internal/clientpool"
	"github.com/bdurand/async-http-pool/internal/config"
	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/events"
	"github.com/bdurand/async-http-pool/internal/logger"
	"github.com/bdurand/async-http-pool/internal/metrics"
	"github.com/bdurand/async-http-pool/internal/ports"
	"github.com/bdurand/async-http-pool/internal/processor"
	"github.com/bdurand/async-http-pool/internal/router"
	"github.com/bdurand/async-http-pool/internal/storage"
)

// clientHealthLogger adapts StyledLogger's styled-origin log methods to
// clientpool.HealthListener so pool health transitions show up in the same
// themed log stream as everything else.
type clientHealthLogger struct {
	log *logger.StyledLogger
}

func (c *clientHealthLogger) ClientHealthy(origin domain.Origin) {
	c.log.InfoClientHealthy("client pool entry healthy", origin.String())
}

func (c *clientHealthLogger) ClientUnhealthy(origin domain.Origin) {
	c.log.WarnClientUnhealthy("client pool entry failed", origin.String())
}

func (c *clientHealthLogger) ClientRetired(origin domain.Origin) {
	c.log.WarnClientRetired("client pool entry retired", origin.String())
}

// Application wires an HTTP ingress surface around the Processor: accept a
// job, enqueue it, let callers poll for the outcome.
type Application struct {
	config    *config.Config
	server    *http.Server
	log       *logger.StyledLogger
	errCh     chan error
	processor *processor.Processor
	results   *resultStore
	events    *events.Broadcaster
	registry  *prometheus.Registry
}

// New builds an Application with its Processor, client pool, external
// storage, and Prometheus observer all wired from cfg.
func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	registry := prometheus.NewRegistry()
	metricsObserver := metrics.New(registry)
	broadcaster := events.NewBroadcaster()
	observer := ports.MultiObserver{Observers: []ports.ProcessorObserver{metricsObserver, broadcaster}}

	pool := clientpool.New(clientpool.Config{
		MaxClients:          cfg.ClientPool.MaxClients,
		IdleTimeout:         cfg.ClientPool.IdleTimeout,
		FailureThreshold:    cfg.ClientPool.FailureThreshold,
		MaxIdleConnsPerHost: 10,
		ProxyURL:            cfg.Processor.ProxyURL,
		HealthCheckInterval: cfg.ClientPool.HealthCheckInterval,
	}, &clientHealthLogger{log: log})

	payloadStore := storage.NewMemoryPayloadStore("memory")
	ext := storage.NewExternalStorage(payloadStore, cfg.Storage.OffloadThreshold.Int64(), log.GetUnderlying())

	proc := processor.New(processor.Config{
		MaxConcurrentRequests: cfg.Processor.MaxConcurrentRequests,
		MaxQueueSize:          cfg.Processor.MaxQueueSize,
		DefaultTimeout:        cfg.Processor.DefaultTimeout,
		DefaultMaxRedirects:   cfg.Processor.DefaultMaxRedirects,
		TransportRetries:      cfg.Processor.TransportRetries,
		MaxResponseSize:       cfg.Processor.MaxResponseSize.Int64(),
		UserAgent:             cfg.Processor.UserAgent,
		RaiseErrorResponses:   cfg.Processor.RaiseErrorResponses,
		DrainTimeout:          cfg.Processor.DrainTimeout,
	}, pool, ext, observer, log.GetUnderlying())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		config:    cfg,
		server:    server,
		log:       log,
		errCh:     make(chan error, 1),
		processor: proc,
		results:   newResultStore(),
		events:    broadcaster,
		registry:  registry,
	}, nil
}

// Start spins up the Processor's reactor and the HTTP ingress surface.
func (a *Application) Start(ctx context.Context) error {
	if err := a.processor.Start(); err != nil {
		return fmt.Errorf("starting processor: %w", err)
	}

	registry := router.NewRouteRegistry(a.log)
	registry.Register("/health", a.healthHandler, "Liveness probe")
	registry.Register("/stats", a.statsHandler, "Queue/in-flight/lifecycle snapshot")
	registry.RegisterWithMethod("/tasks", a.submitTaskHandler, "Submit an offloaded HTTP task", http.MethodPost)
	registry.RegisterWithMethod("/tasks/", a.taskResultHandler, "Fetch a submitted task's outcome", http.MethodGet)
	registry.Register("/events", a.eventStreamHandler, "Stream processor lifecycle events (SSE)")
	registry.Register("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}).ServeHTTP, "Prometheus metrics")

	mux := http.NewServeMux()
	registry.WireUp(mux)
	a.server.Handler = mux

	a.log.InfoLifecycleTransition("starting ingress server", "stopped", "running", "bind", a.server.Addr)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.log.Error("server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	return nil
}

// Stop drains the Processor and shuts down the HTTP surface.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.processor.Stop(a.config.Processor.DrainTimeout); err != nil {
		a.log.Warn("processor did not drain cleanly", "error", err)
	}
	a.events.Shutdown()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	return nil
}

func (a *Application) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "state": a.processor.State()})
}

func (a *Application) statsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     a.processor.State(),
		"queued":    a.processor.Size(),
		"in_flight": a.processor.InFlightCount(),
	})
}

type submitTaskRequest struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	Body         string            `json:"body"`
	TimeoutMS    int               `json:"timeout_ms"`
	MaxRedirects int               `json:"max_redirects"`
	CallbackArgs map[string]any    `json:"callback_args"`
}

func (a *Application) submitTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}

	var payload submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	method := domain.Method(payload.Method)
	if method == "" {
		method = domain.MethodGet
	}

	var opts []domain.RequestOption
	if len(payload.Headers) > 0 {
		opts = append(opts, domain.WithHeaders(domain.HeadersFromMap(payload.Headers)))
	}
	if payload.Body != "" {
		opts = append(opts, domain.WithBody([]byte(payload.Body)))
	}
	if payload.MaxRedirects > 0 {
		opts = append(opts, domain.WithMaxRedirects(payload.MaxRedirects))
	}

	req, err := domain.NewRequest(method, payload.URL, opts...)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	handler := &resultStoreHandler{store: a.results}
	task := domain.NewRequestTask(req, handler, nil, payload.CallbackArgs)
	a.results.markPending(task.ID)

	taskID, err := a.processor.Enqueue(task)
	if err != nil {
		a.results.forget(task.ID)
		status := http.StatusServiceUnavailable
		var capErr *domain.MaxCapacityError
		if errorsAs(err, &capErr) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": string(taskID)})
}

// eventStreamHandler streams processor lifecycle events to the caller as
// server-sent events until the client disconnects.
func (a *Application) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cleanup := a.events.Subscribe(r.Context())
	defer cleanup()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

func (a *Application) taskResultHandler(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(r.URL.Path[len("/tasks/"):])
	result, ok := a.results.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task id"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}
