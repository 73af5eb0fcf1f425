// Package clientpool maintains one long-lived http.Client per origin,
// capped at a configured maximum with least-recently-used eviction, and
// retires clients whose transport has failed too many times in a row.
package clientpool

import (
	"container/list"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/util"
)

// ErrCircuitOpen is returned by Acquire for an origin that was recently
// retired for repeated transport failures and is still within its cooldown
// window — mirrors a circuit breaker's open state.
var ErrCircuitOpen = errors.New("clientpool: origin is cooling down after repeated failures")

// Config derives the transport options every pooled client is built with.
// Each new client resolves its proxy from ProxyURL (or from the environment
// when ProxyURL is empty or invalid); there are no TLS options.
type Config struct {
	MaxClients          int
	IdleTimeout         time.Duration
	FailureThreshold    int
	MaxIdleConnsPerHost int
	ProxyURL            string
	// HealthCheckInterval is the base cooldown applied after an origin's
	// client is retired; each additional retirement of the same origin
	// doubles the prior cooldown, capped by util.DefaultMaxBackoffSeconds.
	HealthCheckInterval time.Duration
}

func (c Config) proxyFunc() func(*http.Request) (*url.URL, error) {
	if c.ProxyURL == "" {
		return http.ProxyFromEnvironment
	}
	fixed, err := url.Parse(c.ProxyURL)
	if err != nil {
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(fixed)
}

// Client wraps an *http.Client for one Origin and tracks consecutive
// transport failures for health retirement.
type Client struct {
	origin domain.Origin
	http   *http.Client

	mu       sync.Mutex
	failures int
	retired  bool
	lastUsed time.Time
	listElem *list.Element
}

// Do executes req, recording the outcome against the client's health state.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)

	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()

	return resp, err
}

// Origin returns the origin this client was built for.
func (c *Client) Origin() domain.Origin { return c.origin }

// Healthy reports whether the client's consecutive failure count is still
// under the pool's threshold.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.retired
}

func (c *Client) recordFailure(threshold int) (retiredNow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= threshold && !c.retired {
		c.retired = true
		return true
	}
	return false
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}

// HealthListener is notified when a client transitions health state.
type HealthListener interface {
	ClientHealthy(origin domain.Origin)
	ClientUnhealthy(origin domain.Origin)
	ClientRetired(origin domain.Origin)
}

// cooldown tracks an origin's circuit-open state after retirement: until
// it elapses, Acquire refuses to dial a fresh client. count drives the
// exponential backoff applied to the next retirement of the same origin.
type cooldown struct {
	until time.Time
	count int
}

// Pool maps Origin to Client, enforcing MaxClients with LRU eviction.
type Pool struct {
	cfg      Config
	listener HealthListener

	mu        sync.Mutex
	entries   map[domain.Origin]*list.Element
	order     *list.List // front = most recently used
	cooldowns map[domain.Origin]*cooldown

	group singleflight.Group // collapses concurrent cold dials to the same origin
}

type poolEntry struct {
	origin domain.Origin
	client *Client
}

// New builds a Pool. listener may be nil to discard health notifications.
func New(cfg Config, listener HealthListener) *Pool {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 64
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Pool{
		cfg:       cfg,
		listener:  listener,
		entries:   make(map[domain.Origin]*list.Element),
		order:     list.New(),
		cooldowns: make(map[domain.Origin]*cooldown),
	}
}

// Acquire returns the pooled Client for origin, building one (exactly once
// across concurrent callers) if none exists yet. An origin still inside its
// post-retirement cooldown window is refused with ErrCircuitOpen rather than
// dialed again immediately.
func (p *Pool) Acquire(origin domain.Origin) (*Client, error) {
	p.mu.Lock()
	if elem, ok := p.entries[origin]; ok {
		p.order.MoveToFront(elem)
		client := elem.Value.(*poolEntry).client
		p.mu.Unlock()
		return client, nil
	}
	if cd, ok := p.cooldowns[origin]; ok && time.Now().Before(cd.until) {
		p.mu.Unlock()
		return nil, ErrCircuitOpen
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(origin.String(), func() (interface{}, error) {
		return p.newClient(origin), nil
	})
	if err != nil {
		return nil, err
	}
	client := v.(*Client)

	p.mu.Lock()
	defer p.mu.Unlock()
	if elem, ok := p.entries[origin]; ok {
		p.order.MoveToFront(elem)
		return elem.Value.(*poolEntry).client, nil
	}

	elem := p.order.PushFront(&poolEntry{origin: origin, client: client})
	client.listElem = elem
	p.entries[origin] = elem
	p.evictLocked()

	return client, nil
}

func (p *Pool) newClient(origin domain.Origin) *Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		// TCP_NODELAY on every dialed connection: the processor already
		// batches a request's headers and body into one write, so Nagle's
		// algorithm coalescing at the socket layer only adds latency.
		Control: setNoDelay,
	}
	transport := &http.Transport{
		Proxy:               p.cfg.proxyFunc(),
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: maxOr(p.cfg.MaxIdleConnsPerHost, 10),
		IdleConnTimeout:     maxDurationOr(p.cfg.IdleTimeout, 90*time.Second),
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		origin: origin,
		http: &http.Client{
			Transport: transport,
			// The processor follows redirects itself (method/body downgrade,
			// cross-origin Authorization stripping, visited-set tracking),
			// so the stdlib's own follow behavior must stay out of the way.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		lastUsed: time.Now(),
	}
}

// evictLocked drops the least-recently-used entry once the pool exceeds
// MaxClients. Caller must hold p.mu.
func (p *Pool) evictLocked() {
	for len(p.entries) > p.cfg.MaxClients {
		back := p.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*poolEntry)
		p.order.Remove(back)
		delete(p.entries, entry.origin)
		entry.client.http.CloseIdleConnections()
	}
}

// RecordOutcome updates a client's health state from a request outcome and
// reports retirement to the configured listener. A retired client is
// evicted and its origin starts a cooldown: Acquire returns ErrCircuitOpen
// until the cooldown elapses, then dials a fresh client.
func (p *Pool) RecordOutcome(c *Client, success bool) {
	if success {
		c.recordSuccess()
		if p.listener != nil {
			p.listener.ClientHealthy(c.origin)
		}
		return
	}

	if p.listener != nil {
		p.listener.ClientUnhealthy(c.origin)
	}

	if c.recordFailure(p.cfg.FailureThreshold) {
		if p.listener != nil {
			p.listener.ClientRetired(c.origin)
		}
		p.evict(c.origin)
	}
}

func (p *Pool) evict(origin domain.Origin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	elem, ok := p.entries[origin]
	if !ok {
		return
	}
	p.order.Remove(elem)
	delete(p.entries, origin)
	elem.Value.(*poolEntry).client.http.CloseIdleConnections()

	checkInterval := p.cfg.HealthCheckInterval
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	cd := p.cooldowns[origin]
	if cd == nil {
		cd = &cooldown{}
		p.cooldowns[origin] = cd
	}
	cd.count++
	backoff := util.CalculateClientRetryBackoff(checkInterval, 1<<uint(cd.count-1))
	cd.until = time.Now().Add(backoff)
}

// Size returns the number of distinct origins currently pooled.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CloseAll releases every pooled client's idle connections, used during
// processor shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for e := p.order.Front(); e != nil; e = e.Next() {
		e.Value.(*poolEntry).client.http.CloseIdleConnections()
	}
	p.entries = make(map[domain.Origin]*list.Element)
	p.order.Init()
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func maxDurationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
