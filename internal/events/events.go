// Package events fans processor lifecycle activity out to any number of
// subscribers (e.g. an SSE stream on the ingress surface) without coupling
// the processor itself to how many observers are watching or who they are.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
	"github.com/bdurand/async-http-pool/pkg/eventbus"
)

// Kind discriminates the shape of Event.Message/TaskID/State for consumers
// that don't want to special-case every ports.ProcessorObserver method.
type Kind string

const (
	KindStarted          Kind = "started"
	KindStopped          Kind = "stopped"
	KindRequestStarted   Kind = "request_started"
	KindRequestEnded     Kind = "request_ended"
	KindError            Kind = "error"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindStateTransition  Kind = "state_transition"
)

// Event is one processor lifecycle occurrence, broadcast to every active
// subscriber. Fields unused by a given Kind are left zero.
type Event struct {
	Kind     Kind          `json:"kind"`
	TaskID   domain.TaskID `json:"task_id,omitempty"`
	From     string        `json:"from,omitempty"`
	To       string        `json:"to,omitempty"`
	Message  string        `json:"message,omitempty"`
	Occurred time.Time     `json:"occurred"`
}

// Broadcaster implements ports.ProcessorObserver by publishing every
// callback onto an eventbus.EventBus, letting any number of external
// subscribers watch the processor's activity live. Publishing never
// blocks the reactor: PublishAsync queues onto the bus's worker pool and
// drops the event if that queue is saturated.
type Broadcaster struct {
	bus *eventbus.EventBus[Event]
}

// NewBroadcaster builds a Broadcaster with the bus's default buffering and
// inactive-subscriber cleanup.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{bus: eventbus.New[Event]()}
}

// Subscribe returns a channel of every Event published from this point on,
// and a cleanup function the caller must invoke once done reading — cleanup
// also fires automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, func()) {
	return b.bus.Subscribe(ctx)
}

// Shutdown stops the underlying bus, releasing its worker pool and cleanup
// goroutine.
func (b *Broadcaster) Shutdown() {
	b.bus.Shutdown()
}

func (b *Broadcaster) publish(e Event) {
	e.Occurred = time.Now()
	b.bus.PublishAsync(e)
}

func (b *Broadcaster) Started() {
	b.publish(Event{Kind: KindStarted})
}

func (b *Broadcaster) Stopped() {
	b.publish(Event{Kind: KindStopped})
}

func (b *Broadcaster) RequestStarted(taskID domain.TaskID, _ domain.Request) {
	b.publish(Event{Kind: KindRequestStarted, TaskID: taskID})
}

func (b *Broadcaster) RequestEnded(taskID domain.TaskID, outcome ports.Outcome) {
	msg := "ok"
	if !outcome.Success() {
		msg = outcome.Err.Error()
	}
	b.publish(Event{Kind: KindRequestEnded, TaskID: taskID, Message: msg})
}

func (b *Broadcaster) Error(err error, context string) {
	b.publish(Event{Kind: KindError, Message: context + ": " + err.Error()})
}

func (b *Broadcaster) CapacityExceeded(queueSize, inFlight int) {
	b.publish(Event{Kind: KindCapacityExceeded, Message: strconv.Itoa(queueSize) + "/" + strconv.Itoa(inFlight)})
}

func (b *Broadcaster) StateTransition(from, to string) {
	b.publish(Event{Kind: KindStateTransition, From: from, To: to})
}
