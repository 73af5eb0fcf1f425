// Package ports declares the capability sets external code plugs into the
// engine with: where bodies get stored, what happens when a task finishes,
// and what gets told about the processor's internal life. None of these are
// inheritance hierarchies — callers satisfy whichever interfaces they need.
package ports

import (
	"time"

	"github.com/bdurand/async-http-pool/internal/domain"
)

// PayloadStore is the pluggable backend ExternalStorage offloads bodies to.
// Multiple adapters (file, key-value, object store, relational) can share
// this contract; the engine never assumes anything about durability beyond
// get-after-put within a process lifetime.
type PayloadStore interface {
	// ID names this store instance; ExternalStorage records it as
	// Payload.StoreID on every stored payload. Materialize always reads from
	// ExternalStorage's one configured store.
	ID() string
	Put(key string, data []byte, contentType string) (ref string, err error)
	Get(ref string) ([]byte, error)
	Delete(ref string) error
	Exists(ref string) (bool, error)
}

// Outcome summarizes a finished request for ProcessorObserver.RequestEnded,
// without forcing the observer to type-switch a Response/error union.
type Outcome struct {
	Response domain.Response
	Err      error
}

func (o Outcome) Success() bool { return o.Err == nil }

// ProcessorObserver receives fire-and-forget instrumentation signals from
// the processor and its LifecycleManager. All methods are optional in
// spirit — embed NoopObserver to implement only the ones you care about.
type ProcessorObserver interface {
	Started()
	Stopped()
	RequestStarted(taskID domain.TaskID, req domain.Request)
	RequestEnded(taskID domain.TaskID, outcome Outcome)
	Error(err error, context string)
	CapacityExceeded(queueSize, inFlight int)
	StateTransition(from, to string)
}

// NoopObserver implements ProcessorObserver with no-ops, so consumers can
// embed it and override only the signals they care about.
type NoopObserver struct{}

func (NoopObserver) Started()                                                  {}
func (NoopObserver) Stopped()                                                  {}
func (NoopObserver) RequestStarted(domain.TaskID, domain.Request)              {}
func (NoopObserver) RequestEnded(domain.TaskID, Outcome)                       {}
func (NoopObserver) Error(error, string)                                       {}
func (NoopObserver) CapacityExceeded(int, int)                                 {}
func (NoopObserver) StateTransition(string, string)                           {}

// MultiObserver fans every ProcessorObserver callback out to each of Observers
// in turn, so the processor can be configured with exactly one observer while
// metrics, event broadcast, and logging each get their own implementation.
type MultiObserver struct {
	Observers []ProcessorObserver
}

func (m MultiObserver) Started() {
	for _, o := range m.Observers {
		o.Started()
	}
}

func (m MultiObserver) Stopped() {
	for _, o := range m.Observers {
		o.Stopped()
	}
}

func (m MultiObserver) RequestStarted(taskID domain.TaskID, req domain.Request) {
	for _, o := range m.Observers {
		o.RequestStarted(taskID, req)
	}
}

func (m MultiObserver) RequestEnded(taskID domain.TaskID, outcome Outcome) {
	for _, o := range m.Observers {
		o.RequestEnded(taskID, outcome)
	}
}

func (m MultiObserver) Error(err error, context string) {
	for _, o := range m.Observers {
		o.Error(err, context)
	}
}

func (m MultiObserver) CapacityExceeded(queueSize, inFlight int) {
	for _, o := range m.Observers {
		o.CapacityExceeded(queueSize, inFlight)
	}
}

func (m MultiObserver) StateTransition(from, to string) {
	for _, o := range m.Observers {
		o.StateTransition(from, to)
	}
}

// Executor is the shared surface of Processor and SynchronousExecutor: the
// admission/dispatch contract a producer depends on, independent of whether
// work actually runs on a reactor or inline on the caller.
type Executor interface {
	Enqueue(task domain.RequestTask) (domain.TaskID, error)
	Start() error
	Stop(drainTimeout time.Duration) error
	Size() int
	InFlightCount() int
	State() string
}
