// Package processor implements the engine's reactor: an admission-controlled
// queue, a bounded set of concurrently in-flight HTTP exchanges, and the
// per-request pipeline (client acquisition, timeout, transport retry,
// redirect following, streamed reading, optional payload offload) that
// turns a domain.RequestTask into a terminal delivery on its TaskHandler.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bdurand/async-http-pool/internal/clientpool"
	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
	"github.com/bdurand/async-http-pool/internal/reader"
	"github.com/bdurand/async-http-pool/internal/storage"
	"github.com/bdurand/async-http-pool/internal/util"

	"github.com/bdurand/async-http-pool/internal/lifecycle"
)

// Config bounds the processor's resource usage and default policy. Every
// field is configurable per the engine's external interface.
type Config struct {
	MaxConcurrentRequests int
	MaxQueueSize          int
	DefaultTimeout        time.Duration
	DefaultMaxRedirects   int
	TransportRetries      int
	MaxResponseSize       int64
	UserAgent             string
	RaiseErrorResponses   bool
	DrainTimeout          time.Duration
}

type execOutcome struct {
	resp            domain.Response
	err             error
	responsePayload domain.Payload
}

type inflightEntry struct {
	task    domain.RequestTask
	settled int32
}

// pipeline is the per-request execution path shared by the reactor-driven
// Processor and the inline SynchronousExecutor: body rehydration, client
// acquisition, timeout, transport retry, redirect following, streamed
// reading, and optional offload/error-raising. Neither caller touches queue
// or in-flight bookkeeping here — that stays the caller's responsibility.
type pipeline struct {
	cfg  Config
	pool *clientpool.Pool
	ext  *storage.ExternalStorage
}

var _ ports.Executor = (*Processor)(nil)

// Processor is the concurrent reactor. Zero value is not usable — build one
// with New.
type Processor struct {
	cfg      Config
	pl       pipeline
	lc       *lifecycle.Manager
	pool     *clientpool.Pool
	ext      *storage.ExternalStorage
	observer ports.ProcessorObserver
	logger   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []domain.RequestTask
	inFlight map[domain.TaskID]*inflightEntry

	wg sync.WaitGroup

	stopOnce sync.Once
}

// New builds a Processor in the stopped state. observer and logger may be
// nil, in which case instrumentation is a no-op and diagnostics use
// slog.Default().
func New(cfg Config, pool *clientpool.Pool, ext *storage.ExternalStorage, observer ports.ProcessorObserver, logger *slog.Logger) *Processor {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		cfg:      cfg,
		pl:       pipeline{cfg: cfg, pool: pool, ext: ext},
		pool:     pool,
		ext:      ext,
		observer: observer,
		logger:   logger,
		inFlight: make(map[domain.TaskID]*inflightEntry),
	}
	p.cond = sync.NewCond(&p.mu)
	p.lc = lifecycle.NewManager(func(from, to lifecycle.State) {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
		if p.observer != nil {
			p.observer.StateTransition(from.String(), to.String())
		}
	})
	return p
}

// Start moves the processor from stopped to running and spins up the
// reactor goroutine. Idempotent only in the sense that a second Start on an
// already-running processor fails cleanly; it never spawns a second reactor.
func (p *Processor) Start() error {
	if err := p.lc.Start(); err != nil {
		return err
	}
	go p.reactorLoop()
	if err := p.lc.MarkRunning(); err != nil {
		return err
	}
	if p.observer != nil {
		p.observer.Started()
	}
	return nil
}

// Enqueue admits task for execution. It never blocks on I/O: the task is
// either appended to the queue (and the reactor woken) or rejected
// synchronously with NotRunningError or MaxCapacityError.
func (p *Processor) Enqueue(task domain.RequestTask) (domain.TaskID, error) {
	if !p.lc.AcceptingNew() {
		return "", domain.NewNotRunningError(p.lc.Current().String())
	}

	p.mu.Lock()
	total := len(p.queue) + len(p.inFlight)
	if total >= p.cfg.MaxConcurrentRequests+p.cfg.MaxQueueSize {
		queueSize, inFlight := len(p.queue), len(p.inFlight)
		p.mu.Unlock()
		if p.observer != nil {
			p.observer.CapacityExceeded(queueSize, inFlight)
		}
		return "", domain.NewMaxCapacityError(queueSize, inFlight)
	}

	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Broadcast()

	return task.ID, nil
}

// Stop begins a graceful shutdown: draining admits no new work and waits up
// to drainTimeout for queued/in-flight tasks to settle on their own, then
// surrenders whatever remains to TaskHandler.Retry exactly once each and
// transitions to stopped. Outstanding goroutines executing surrendered
// in-flight tasks are not cancelled — they run to completion in the
// background, their eventual delivery simply discarded since Retry has
// already claimed the task.
func (p *Processor) Stop(drainTimeout time.Duration) error {
	var retErr error
	p.stopOnce.Do(func() {
		if err := p.lc.BeginDrain(); err != nil {
			retErr = err
			return
		}

		deadline := time.NewTimer(drainTimeout)
		defer deadline.Stop()

		settled := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(settled)
		}()

		select {
		case <-settled:
		case <-deadline.C:
		}

		if err := p.lc.BeginStop(); err != nil {
			retErr = err
			return
		}
		p.cond.Broadcast() // wake the reactor so it observes AnyWorkPossible()==false and exits

		p.surrenderRemaining()

		if err := p.lc.MarkStopped(); err != nil {
			retErr = err
			return
		}
		if p.pool != nil {
			p.pool.CloseAll()
		}
		if p.observer != nil {
			p.observer.Stopped()
		}
	})
	return retErr
}

// surrenderRemaining delivers Retry exactly once to every task still queued
// or still in-flight, claiming each via the same settled flag the normal
// completion path uses so a task is never delivered twice.
func (p *Processor) surrenderRemaining() {
	p.mu.Lock()
	queued := p.queue
	p.queue = nil
	inflightEntries := make([]*inflightEntry, 0, len(p.inFlight))
	for _, entry := range p.inFlight {
		inflightEntries = append(inflightEntries, entry)
	}
	p.mu.Unlock()

	// In-flight tasks race the goroutine that's still running them: the
	// settled CAS ensures exactly one of {surrenderRemaining, runTask}
	// delivers each one.
	for _, entry := range inflightEntries {
		if atomic.CompareAndSwapInt32(&entry.settled, 0, 1) {
			p.safeRetry(entry.task)
		}
	}
	// Queued tasks never started, so there's no competing delivery to race.
	for _, task := range queued {
		p.safeRetry(task)
	}
}

func (p *Processor) safeRetry(task domain.RequestTask) {
	defer func() {
		if r := recover(); r != nil {
			if p.observer != nil {
				p.observer.Error(fmt.Errorf("task handler panic in retry: %v", r), "handler_panic")
			}
		}
	}()
	task.Handler.Retry(task)
}

// Size returns the number of tasks currently queued but not yet in flight.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// InFlightCount returns the number of tasks currently executing.
func (p *Processor) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// State returns the lifecycle state's string form.
func (p *Processor) State() string {
	return p.lc.Current().String()
}

func (p *Processor) reactorLoop() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && p.lc.AnyWorkPossible() {
			p.cond.Wait()
		}
		if !p.lc.AnyWorkPossible() {
			p.mu.Unlock()
			return
		}

		for len(p.queue) > 0 && len(p.inFlight) < p.cfg.MaxConcurrentRequests {
			task := p.queue[0]
			p.queue = p.queue[1:]

			entry := &inflightEntry{task: task}
			p.inFlight[task.ID] = entry

			p.mu.Unlock()
			if p.observer != nil {
				p.observer.RequestStarted(task.ID, task.Request)
			}
			p.wg.Add(1)
			go p.runTask(task, entry)
			p.mu.Lock()
		}
		p.mu.Unlock()
	}
}

func (p *Processor) runTask(task domain.RequestTask, entry *inflightEntry) {
	defer p.wg.Done()

	outcome := p.pl.execute(task)

	p.mu.Lock()
	delete(p.inFlight, task.ID)
	p.mu.Unlock()
	p.cond.Broadcast()

	if atomic.CompareAndSwapInt32(&entry.settled, 0, 1) {
		p.deliver(task, outcome)
	}

	if p.observer != nil {
		p.observer.RequestEnded(task.ID, ports.Outcome{Response: outcome.resp, Err: outcome.err})
	}
}

func (p *Processor) deliver(task domain.RequestTask, outcome execOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task handler panic: %v", r)
			if p.observer != nil {
				p.observer.Error(err, "handler_panic")
			}
			p.logger.Error("task handler panicked", "error", err, "task_id", task.ID)
		}
	}()

	if outcome.err != nil {
		task.Handler.OnError(task, outcome.err)
	} else {
		task.Handler.OnComplete(task, outcome.resp)
		if p.ext != nil && outcome.responsePayload.IsStored() {
			p.ext.Cleanup(outcome.responsePayload)
		}
	}
}

// execute runs the full per-request pipeline: body rehydration, client
// acquisition, timeout, transport retry, redirect following, streamed
// reading, and optional offload/error-raising — never panicking, never
// touching the queue or in-flight bookkeeping (that's the caller's job).
func (pl *pipeline) execute(task domain.RequestTask) execOutcome {
	body, err := pl.resolveBody(task)
	if err != nil {
		return execOutcome{err: domain.NewRequestError(domain.RequestErrorIO, task.Request, task.CallbackArgs, err)}
	}

	timeout := task.Request.Timeout()
	if timeout <= 0 {
		timeout = pl.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	maxRedirects := pl.cfg.DefaultMaxRedirects
	if n, ok := task.Request.MaxRedirects(); ok {
		maxRedirects = n
	}

	current := task.Request
	visited := make(map[string]bool)
	redirects := 0
	retriesLeft := pl.cfg.TransportRetries

	for {
		origin, err := domain.OriginOf(current.URL())
		if err != nil {
			return execOutcome{err: domain.NewRequestError(domain.RequestErrorDNS, current, task.CallbackArgs, err)}
		}

		client, err := pl.pool.Acquire(origin)
		if err != nil {
			return execOutcome{err: domain.NewRequestError(domain.RequestErrorConnect, current, task.CallbackArgs, err)}
		}

		var requestBody []byte
		if current.HasBody() {
			requestBody = body
		}

		httpResp, err := pl.doWithRetry(ctx, client, current, requestBody, &retriesLeft)
		if err != nil {
			pl.pool.RecordOutcome(client, false)
			if ctx.Err() != nil {
				return execOutcome{err: domain.NewRequestError(domain.RequestErrorTimeout, current, task.CallbackArgs, err)}
			}
			return execOutcome{err: classifyTransportError(current, task.CallbackArgs, err)}
		}
		pl.pool.RecordOutcome(client, true)

		if isRedirectStatus(httpResp.StatusCode) {
			location := httpResp.Header.Get("Location")
			if location == "" {
				// No Location on a 3xx: treat the response as final rather
				// than invent a redirect target.
				return pl.finalize(current, httpResp, task)
			}
			_ = httpResp.Body.Close()

			target, err := resolveRedirectTarget(current.URL(), location)
			if err != nil {
				return execOutcome{err: domain.NewRequestError(domain.RequestErrorIO, current, task.CallbackArgs, err)}
			}

			normalizedCurrent := normalizeURL(current.URL())
			if visited[normalizedCurrent] {
				return execOutcome{err: domain.NewRecursiveRedirectError(current, task.CallbackArgs, target)}
			}
			visited[normalizedCurrent] = true

			if redirects >= maxRedirects {
				return execOutcome{err: domain.NewTooManyRedirectsError(current, task.CallbackArgs, target)}
			}
			redirects++

			dropBody := current.HasBody() && downgradesToGet(httpResp.StatusCode)
			newMethod := current.Method()
			if dropBody {
				newMethod = domain.MethodGet
			}
			stripAuth := crossOrigin(current.URL(), target)

			current = current.Redirected(target, newMethod, dropBody, stripAuth)
			continue
		}

		return pl.finalize(current, httpResp, task)
	}
}

func (pl *pipeline) finalize(req domain.Request, httpResp *http.Response, task domain.RequestTask) execOutcome {
	bodyBytes, err := reader.Read(httpResp.Body, httpResp.Header.Get("Content-Encoding"), pl.cfg.MaxResponseSize)
	_ = httpResp.Body.Close()

	if pl.ext != nil && task.Payload.IsStored() {
		pl.ext.Cleanup(task.Payload)
	}

	if err != nil {
		if errors.Is(err, reader.ErrTooLarge) {
			return execOutcome{err: domain.NewResponseTooLargeError(req, task.CallbackArgs, pl.cfg.MaxResponseSize)}
		}
		return execOutcome{err: domain.NewRequestError(domain.RequestErrorIO, req, task.CallbackArgs, err)}
	}

	headers := flattenHeader(httpResp.Header)
	response := domain.NewResponse(httpResp.StatusCode, headers, bodyBytes, req.Method(), req.URL(), task.CallbackArgs)

	if pl.cfg.RaiseErrorResponses {
		if response.IsClientError() {
			return execOutcome{err: domain.NewClientError(req, task.CallbackArgs, response.Status, bodyBytes)}
		}
		if response.IsServerError() {
			return execOutcome{err: domain.NewServerError(req, task.CallbackArgs, response.Status, bodyBytes)}
		}
	}

	var responsePayload domain.Payload
	if pl.ext != nil {
		contentType, _ := headers.Get("content-type")
		responsePayload = pl.ext.MaybeOffload(bodyBytes, contentType)
	}

	return execOutcome{resp: response, responsePayload: responsePayload}
}

func (pl *pipeline) resolveBody(task domain.RequestTask) ([]byte, error) {
	if task.Payload.IsStored() {
		return pl.ext.Materialize(task.Payload)
	}
	return task.Request.Body(), nil
}

func (pl *pipeline) doWithRetry(ctx context.Context, client *clientpool.Client, req domain.Request, body []byte, retriesLeft *int) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			backoff := util.CalculateConnectionRetryBackoff(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		httpReq, err := buildHTTPRequest(ctx, req, body, pl.cfg.UserAgent)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(httpReq)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryableTransportError(err) || *retriesLeft <= 0 {
			return nil, err
		}
		*retriesLeft--
	}
}

func buildHTTPRequest(ctx context.Context, req domain.Request, body []byte, defaultUserAgent string) (*http.Request, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method()), req.URL(), bodyReader)
	if err != nil {
		return nil, err
	}

	req.Headers().Range(func(key, value string) {
		httpReq.Header.Set(key, value)
	})

	if httpReq.Header.Get("User-Agent") == "" && defaultUserAgent != "" {
		httpReq.Header.Set("User-Agent", defaultUserAgent)
	}

	return httpReq, nil
}

func isRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// downgradesToGet reports whether a 3xx status converts a body-bearing
// request to a bodyless GET (301/302/303), as opposed to 307/308 which
// preserve method and body.
func downgradesToGet(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		return true
	default:
		return false
	}
}

func resolveRedirectTarget(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func crossOrigin(from, to string) bool {
	fromOrigin, err1 := domain.OriginOf(from)
	toOrigin, err2 := domain.OriginOf(to)
	if err1 != nil || err2 != nil {
		return true
	}
	return fromOrigin != toOrigin
}

func flattenHeader(h http.Header) domain.HttpHeaders {
	out := domain.NewHttpHeaders()
	for key, values := range h {
		for _, v := range values {
			out.Add(key, v)
		}
	}
	return out
}

func classifyTransportError(req domain.Request, callbackArgs map[string]any, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NewRequestError(domain.RequestErrorDNS, req, callbackArgs, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return domain.NewRequestError(domain.RequestErrorConnect, req, callbackArgs, err)
		}
		return domain.NewRequestError(domain.RequestErrorIO, req, callbackArgs, err)
	}

	if strings.Contains(err.Error(), "tls") || strings.Contains(err.Error(), "certificate") {
		return domain.NewRequestError(domain.RequestErrorTLS, req, callbackArgs, err)
	}

	return domain.NewRequestError(domain.RequestErrorConnect, req, callbackArgs, err)
}

func isRetryableTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
