package domain

import "fmt"

// RequestErrorKind distinguishes the ways a request could fail to produce a
// response at all (as opposed to receiving one the task opted to treat as an
// error — see HttpError).
type RequestErrorKind string

const (
	RequestErrorConnect RequestErrorKind = "connect"
	RequestErrorDNS     RequestErrorKind = "dns"
	RequestErrorTLS     RequestErrorKind = "tls"
	RequestErrorTimeout RequestErrorKind = "timeout"
	RequestErrorIO      RequestErrorKind = "io"
)

// errorContext is embedded in every engine error: the originating request's
// identity plus whatever callback_args the caller attached, so a TaskHandler
// can route a failure back to whoever asked for it.
type errorContext struct {
	Method       string         `json:"method"`
	URL          string         `json:"url"`
	CallbackArgs map[string]any `json:"callback_args,omitempty"`
	Cause        string         `json:"cause,omitempty"`
	wrapped      error
}

func newErrorContext(req Request, callbackArgs map[string]any, cause error) errorContext {
	ctx := errorContext{
		Method:       string(req.Method()),
		URL:          req.URL(),
		CallbackArgs: callbackArgs,
		wrapped:      cause,
	}
	if cause != nil {
		ctx.Cause = cause.Error()
	}
	return ctx
}

func (c errorContext) Unwrap() error { return c.wrapped }

// RequestError reports that a request could not be formed or dispatched at
// all — connect refused, DNS failure, TLS handshake failure, timeout, or a
// socket reset.
type RequestError struct {
	errorContext
	Kind RequestErrorKind `json:"kind"`
}

func NewRequestError(kind RequestErrorKind, req Request, callbackArgs map[string]any, cause error) *RequestError {
	return &RequestError{errorContext: newErrorContext(req, callbackArgs, cause), Kind: kind}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request error (%s): %s %s: %s", e.Kind, e.Method, e.URL, e.Cause)
}

// HttpError reports a 4xx/5xx response that was received but is being
// treated as a failure because the processor is configured with
// RaiseErrorResponses. The setting is processor-wide; a task cannot opt in
// or out on its own.
type HttpError struct {
	errorContext
	Status int    `json:"status"`
	Body   []byte `json:"body,omitempty"`
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("http error: %s %s -> %d", e.Method, e.URL, e.Status)
}

// ClientError is an HttpError for a 4xx status.
type ClientError struct{ HttpError }

func NewClientError(req Request, callbackArgs map[string]any, status int, body []byte) *ClientError {
	return &ClientError{HttpError{errorContext: newErrorContext(req, callbackArgs, nil), Status: status, Body: body}}
}

// ServerError is an HttpError for a 5xx status.
type ServerError struct{ HttpError }

func NewServerError(req Request, callbackArgs map[string]any, status int, body []byte) *ServerError {
	return &ServerError{HttpError{errorContext: newErrorContext(req, callbackArgs, nil), Status: status, Body: body}}
}

// RedirectErrorKind distinguishes the two ways redirect-following can fail.
type RedirectErrorKind string

const (
	RedirectTooMany   RedirectErrorKind = "too_many"
	RedirectRecursive RedirectErrorKind = "recursive"
)

// RedirectError reports that the redirect chain exceeded max_redirects or
// revisited a normalized URL already seen in the same chain.
type RedirectError struct {
	errorContext
	Kind     RedirectErrorKind `json:"kind"`
	FinalURL string            `json:"final_url"`
}

func NewTooManyRedirectsError(req Request, callbackArgs map[string]any, finalURL string) *RedirectError {
	return &RedirectError{
		errorContext: newErrorContext(req, callbackArgs, nil),
		Kind:         RedirectTooMany,
		FinalURL:     finalURL,
	}
}

func NewRecursiveRedirectError(req Request, callbackArgs map[string]any, finalURL string) *RedirectError {
	return &RedirectError{
		errorContext: newErrorContext(req, callbackArgs, nil),
		Kind:         RedirectRecursive,
		FinalURL:     finalURL,
	}
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect error (%s): %s %s -> %s", e.Kind, e.Method, e.URL, e.FinalURL)
}

// ResponseTooLargeError reports a response body exceeding the configured
// max_response_size.
type ResponseTooLargeError struct {
	errorContext
	MaxBytes int64 `json:"max_bytes"`
}

func NewResponseTooLargeError(req Request, callbackArgs map[string]any, maxBytes int64) *ResponseTooLargeError {
	return &ResponseTooLargeError{errorContext: newErrorContext(req, callbackArgs, nil), MaxBytes: maxBytes}
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response too large: %s %s exceeded %d bytes", e.Method, e.URL, e.MaxBytes)
}

// NotRunningError is raised synchronously from enqueue when the processor
// is not in a state that accepts new work.
type NotRunningError struct {
	State string `json:"state"`
}

func NewNotRunningError(state string) *NotRunningError {
	return &NotRunningError{State: state}
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("processor not accepting new work (state=%s)", e.State)
}

// MaxCapacityError is raised synchronously from enqueue when the queue and
// in-flight set are both saturated.
type MaxCapacityError struct {
	QueueSize int `json:"queue_size"`
	InFlight  int `json:"in_flight"`
}

func NewMaxCapacityError(queueSize, inFlight int) *MaxCapacityError {
	return &MaxCapacityError{QueueSize: queueSize, InFlight: inFlight}
}

func (e *MaxCapacityError) Error() string {
	return fmt.Sprintf("processor at capacity (queue=%d, in_flight=%d)", e.QueueSize, e.InFlight)
}
