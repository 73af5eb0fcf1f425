package domain

import "github.com/google/uuid"

// TaskID uniquely identifies one RequestTask across its queued, in-flight,
// and completed lifetime — used in logs and ProcessorObserver callbacks.
type TaskID string

// NewTaskID mints a fresh, random task identifier.
func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// TaskHandler is the caller-supplied sink for a RequestTask's outcome. The
// engine never inspects callback or callbackArgs; they are opaque to
// everything except the handler the caller registered them with.
type TaskHandler interface {
	// OnComplete is invoked with the final Response once the exchange
	// completes, including a 4xx/5xx status unless the processor is
	// configured with RaiseErrorResponses.
	OnComplete(task RequestTask, resp Response)

	// OnError is invoked when the exchange could not produce a Response at
	// all, or when the processor is configured with RaiseErrorResponses and
	// the status is 4xx/5xx. There is no per-task setting for this.
	OnError(task RequestTask, err error)

	// Retry is called exactly once, instead of OnComplete/OnError, for each
	// task still queued or still in flight when Stop's drain period ends.
	// The processor does not act on the returned value; re-submitting the
	// task is up to the handler.
	Retry(task RequestTask) bool
}

// RequestTask binds an immutable Request to the handler that should learn
// its outcome, plus an opaque callback identifier and caller-supplied
// callback_args forwarded verbatim into every Response/error.
type RequestTask struct {
	ID           TaskID
	Request      Request
	Handler      TaskHandler
	Callback     any
	CallbackArgs map[string]any

	// Payload, when Stored, means the request body was offloaded by the
	// caller ahead of time and must be rehydrated via ExternalStorage
	// before dispatch rather than read off Request.Body(). Zero value
	// behaves as "use Request's own inline body".
	Payload Payload
}

// NewRequestTask binds a Request to the handler that should learn its
// outcome, assigning it a fresh TaskID.
func NewRequestTask(req Request, handler TaskHandler, callback any, callbackArgs map[string]any) RequestTask {
	return RequestTask{
		ID:           NewTaskID(),
		Request:      req,
		Handler:      handler,
		Callback:     callback,
		CallbackArgs: callbackArgs,
	}
}

// WithStoredPayload attaches a previously offloaded request body to the task.
func (t RequestTask) WithStoredPayload(payload Payload) RequestTask {
	t.Payload = payload
	return t
}
