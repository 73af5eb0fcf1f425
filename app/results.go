package app

import (
	"sync"

	"github.com/bdurand/async-http-pool/internal/domain"
)

// taskResult is the JSON-facing snapshot of a submitted task's outcome,
// polled via GET /tasks/{id}.
type taskResult struct {
	Status   string           `json:"status"` // pending, complete, error, retry
	Response *domain.Response `json:"response,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// resultStore is an in-memory map from TaskID to its latest known outcome.
// It exists purely so the demo ingress surface has somewhere to park a
// result between POST /tasks and the caller's next GET /tasks/{id} — a real
// deployment would hand outcomes off to its own callback/webhook instead.
type resultStore struct {
	mu      sync.Mutex
	results map[domain.TaskID]taskResult
}

func newResultStore() *resultStore {
	return &resultStore{results: make(map[domain.TaskID]taskResult)}
}

func (s *resultStore) markPending(id domain.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = taskResult{Status: "pending"}
}

func (s *resultStore) forget(id domain.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, id)
}

func (s *resultStore) get(id domain.TaskID) (taskResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	return r, ok
}

func (s *resultStore) setComplete(id domain.TaskID, resp domain.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = taskResult{Status: "complete", Response: &resp}
}

func (s *resultStore) setError(id domain.TaskID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = taskResult{Status: "error", Error: err.Error()}
}

func (s *resultStore) setRetried(id domain.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = taskResult{Status: "retry"}
}

// resultStoreHandler is the domain.TaskHandler every task submitted through
// the HTTP ingress surface is bound to: it has nowhere else to deliver an
// outcome than back into the store the poller reads from.
type resultStoreHandler struct {
	store *resultStore
}

func (h *resultStoreHandler) OnComplete(task domain.RequestTask, resp domain.Response) {
	h.store.setComplete(task.ID, resp)
}

func (h *resultStoreHandler) OnError(task domain.RequestTask, err error) {
	h.store.setError(task.ID, err)
}

// Retry declines re-queuing: a surrendered task during drain is reported as
// such to the poller rather than silently resubmitted on the caller's
// behalf.
func (h *resultStoreHandler) Retry(task domain.RequestTask) bool {
	h.store.setRetried(task.ID)
	return false
}
