package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Method is the small set of HTTP methods the engine will dispatch.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	default:
		return false
	}
}

// bodyForbidden reports whether a body may not accompany this method.
func (m Method) bodyForbidden() bool {
	return m == MethodGet || m == MethodDelete
}

// Request is an immutable description of a single outbound HTTP exchange.
// Once constructed its fields never change; redirects and retries build new
// Request values rather than mutating this one.
type Request struct {
	method       Method
	url          string
	headers      HttpHeaders
	body         []byte
	hasBody      bool
	timeout      time.Duration
	maxRedirects int
}

// RequestOption configures a Request at construction time.
type RequestOption func(*requestBuild)

type requestBuild struct {
	headers      HttpHeaders
	body         []byte
	hasBody      bool
	jsonBody     bool
	timeout      time.Duration
	maxRedirects int
	maxRedirSet  bool
}

func WithHeaders(h HttpHeaders) RequestOption {
	return func(b *requestBuild) { b.headers = h.Clone() }
}

func WithBody(body []byte) RequestOption {
	return func(b *requestBuild) {
		if len(body) == 0 {
			b.hasBody = false
			b.body = nil
			return
		}
		b.body = body
		b.hasBody = true
	}
}

// WithJSONBody marks the body as JSON so NewRequest defaults content-type.
func WithJSONBody(body []byte) RequestOption {
	return func(b *requestBuild) {
		if len(body) == 0 {
			return
		}
		b.body = body
		b.hasBody = true
		b.jsonBody = true
	}
}

func WithTimeout(d time.Duration) RequestOption {
	return func(b *requestBuild) { b.timeout = d }
}

func WithMaxRedirects(n int) RequestOption {
	return func(b *requestBuild) {
		b.maxRedirects = n
		b.maxRedirSet = true
	}
}

// NewRequest constructs an immutable Request. method must be one of the
// five supported verbs; a body on GET/DELETE is rejected. An empty-string
// body is normalized to absent, per spec.
func NewRequest(method Method, rawURL string, opts ...RequestOption) (Request, error) {
	if !method.Valid() {
		return Request{}, fmt.Errorf("domain: unsupported method %q", method)
	}

	build := requestBuild{headers: NewHttpHeaders(), maxRedirects: -1}
	for _, opt := range opts {
		opt(&build)
	}

	if build.hasBody && method.bodyForbidden() {
		return Request{}, fmt.Errorf("domain: method %s cannot carry a body", method)
	}

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return Request{}, fmt.Errorf("domain: invalid url %q: %w", rawURL, err)
	}

	headers := build.headers
	if build.jsonBody && !headers.Has("content-type") {
		headers.Set("Content-Type", "application/json; encoding=utf-8")
	}

	maxRedirects := build.maxRedirects
	if !build.maxRedirSet {
		maxRedirects = -1 // sentinel: "unset", RequestTemplate/Processor applies default
	}

	return Request{
		method:       method,
		url:          rawURL,
		headers:      headers,
		body:         build.body,
		hasBody:      build.hasBody,
		timeout:      build.timeout,
		maxRedirects: maxRedirects,
	}, nil
}

func (r Request) Method() Method        { return r.method }
func (r Request) URL() string           { return r.url }
func (r Request) Headers() HttpHeaders  { return r.headers.Clone() }
func (r Request) HasBody() bool         { return r.hasBody }
func (r Request) Timeout() time.Duration { return r.timeout }

// MaxRedirects returns the configured cap and whether the request set one
// explicitly (false means the processor's default_max_redirects applies).
func (r Request) MaxRedirects() (int, bool) {
	if r.maxRedirects < 0 {
		return 0, false
	}
	return r.maxRedirects, true
}

// Body returns a defensive copy so callers cannot mutate the immutable Request.
func (r Request) Body() []byte {
	if !r.hasBody {
		return nil
	}
	cp := make([]byte, len(r.body))
	copy(cp, r.body)
	return cp
}

// Redirected returns a copy of r repointed at a new URL/method/body, used by
// the processor's redirect-following loop. Request stays immutable from the
// caller's perspective — this never mutates r itself.
func (r Request) Redirected(newURL string, newMethod Method, dropBody bool, stripAuth bool) Request {
	next := r
	next.url = newURL
	next.method = newMethod
	next.headers = r.headers.Clone()
	if dropBody {
		next.body = nil
		next.hasBody = false
	}
	if stripAuth {
		next.headers.Delete("Authorization")
	}
	return next
}

// RequestTemplate holds defaults shared across many requests against the
// same API — a base URL, default headers/params, and a default timeout.
type RequestTemplate struct {
	BaseURL        string
	DefaultHeaders HttpHeaders
	DefaultParams  map[string]string
	DefaultTimeout time.Duration
}

// NewRequestTemplate returns a template with the spec's 30s default timeout.
func NewRequestTemplate(baseURL string) RequestTemplate {
	return RequestTemplate{
		BaseURL:        baseURL,
		DefaultHeaders: NewHttpHeaders(),
		DefaultParams:  map[string]string{},
		DefaultTimeout: 30 * time.Second,
	}
}

// Build resolves relativeOrAbsoluteURL against BaseURL, merges default
// headers under any per-request headers (per-request wins), appends default
// params to the query string, and defaults the timeout when unset.
func (t RequestTemplate) Build(method Method, relativeOrAbsoluteURL string, opts ...RequestOption) (Request, error) {
	resolved, err := t.resolveURL(relativeOrAbsoluteURL)
	if err != nil {
		return Request{}, err
	}

	build := requestBuild{headers: NewHttpHeaders(), maxRedirects: -1}
	for _, opt := range opts {
		opt(&build)
	}

	merged := t.DefaultHeaders.Merge(build.headers)

	finalOpts := []RequestOption{WithHeaders(merged)}
	if build.hasBody {
		if build.jsonBody {
			finalOpts = append(finalOpts, WithJSONBody(build.body))
		} else {
			finalOpts = append(finalOpts, WithBody(build.body))
		}
	}
	if build.maxRedirSet {
		finalOpts = append(finalOpts, WithMaxRedirects(build.maxRedirects))
	}

	timeout := build.timeout
	if timeout == 0 {
		timeout = t.DefaultTimeout
	}
	finalOpts = append(finalOpts, WithTimeout(timeout))

	return NewRequest(method, resolved, finalOpts...)
}

func (t RequestTemplate) resolveURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("domain: invalid url %q: %w", target, err)
	}

	if u.IsAbs() {
		return t.withParams(u)
	}

	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", fmt.Errorf("domain: invalid base_url %q: %w", t.BaseURL, err)
	}

	return t.withParams(base.ResolveReference(u))
}

func (t RequestTemplate) withParams(u *url.URL) (string, error) {
	if len(t.DefaultParams) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for k, v := range t.DefaultParams {
		if q.Get(k) == "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Origin returns the (scheme, host, port) tuple a client pool keys clients
// by. Port is normalized to the scheme's default when absent.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%s", o.Scheme, o.Host, o.Port)
}

// OriginOf extracts the client-pool key from an absolute URL.
func OriginOf(rawURL string) (Origin, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("domain: invalid url %q: %w", rawURL, err)
	}

	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}

	return Origin{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Port:   port,
	}, nil
}
