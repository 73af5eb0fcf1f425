package processor

import (
	"fmt"
	"sync"
	"time"

	"github.com/bdurand/async-http-pool/internal/clientpool"
	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
	"github.com/bdurand/async-http-pool/internal/storage"
)

var _ ports.Executor = (*SynchronousExecutor)(nil)

// SynchronousExecutor satisfies ports.Executor by running every task inline
// on the calling goroutine through the same pipeline a Processor uses,
// minus the reactor and queue. It exists for tests: swapping a construction-
// time Executor choice between this and a real Processor lets test code
// assert on a task's outcome without waiting on a background reactor.
type SynchronousExecutor struct {
	pl       pipeline
	observer ports.ProcessorObserver

	mu       sync.Mutex
	running  bool
	inFlight map[domain.TaskID]struct{}
}

// NewSynchronousExecutor builds a SynchronousExecutor in the stopped state.
// observer may be nil.
func NewSynchronousExecutor(cfg Config, pool *clientpool.Pool, ext *storage.ExternalStorage, observer ports.ProcessorObserver) *SynchronousExecutor {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 1
	}
	return &SynchronousExecutor{
		pl:       pipeline{cfg: cfg, pool: pool, ext: ext},
		observer: observer,
		inFlight: make(map[domain.TaskID]struct{}),
	}
}

// Start marks the executor as accepting work. There is no reactor to spin up.
func (s *SynchronousExecutor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	if s.observer != nil {
		s.observer.Started()
	}
	return nil
}

// Stop marks the executor as no longer accepting work. Since Enqueue never
// returns until the task has settled, there is nothing left to drain.
func (s *SynchronousExecutor) Stop(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.observer != nil {
		s.observer.Stopped()
	}
	return nil
}

// Enqueue runs task to completion inline before returning, delivering its
// outcome to task.Handler on the caller's own goroutine.
func (s *SynchronousExecutor) Enqueue(task domain.RequestTask) (domain.TaskID, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return "", domain.NewNotRunningError("stopped")
	}
	s.inFlight[task.ID] = struct{}{}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.RequestStarted(task.ID, task.Request)
	}

	outcome := s.pl.execute(task)

	s.mu.Lock()
	delete(s.inFlight, task.ID)
	s.mu.Unlock()

	s.deliver(task, outcome)

	if s.observer != nil {
		s.observer.RequestEnded(task.ID, ports.Outcome{Response: outcome.resp, Err: outcome.err})
	}

	return task.ID, nil
}

func (s *SynchronousExecutor) deliver(task domain.RequestTask, outcome execOutcome) {
	defer func() {
		if r := recover(); r != nil {
			if s.observer != nil {
				s.observer.Error(fmt.Errorf("task handler panic: %v", r), "handler_panic")
			}
		}
	}()

	if outcome.err != nil {
		task.Handler.OnError(task, outcome.err)
	} else {
		task.Handler.OnComplete(task, outcome.resp)
		if s.pl.ext != nil && outcome.responsePayload.IsStored() {
			s.pl.ext.Cleanup(outcome.responsePayload)
		}
	}
}

// Size is always 0: a SynchronousExecutor never queues work.
func (s *SynchronousExecutor) Size() int { return 0 }

// InFlightCount reports the number of Enqueue calls currently running —
// at most the caller's own concurrency, since nothing here is concurrent
// unless the caller invokes Enqueue from multiple goroutines at once.
func (s *SynchronousExecutor) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// State reports "running" once Start has been called and Stop has not yet
// followed, "stopped" otherwise.
func (s *SynchronousExecutor) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "running"
	}
	return "stopped"
}
