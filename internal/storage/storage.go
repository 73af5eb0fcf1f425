// Package storage implements offload of oversized request/response bodies
// to a pluggable ports.PayloadStore, and an in-memory reference store
// suitable for tests and small deployments.
package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bdurand/async-http-pool/internal/domain"
	"github.com/bdurand/async-http-pool/internal/ports"
)

// ExternalStorage offloads bodies that cross a configured size threshold to
// a ports.PayloadStore, and materializes them back on demand. Offload is
// best-effort: a store failure degrades to keeping the body inline rather
// than failing the request.
type ExternalStorage struct {
	store     ports.PayloadStore
	threshold int64
	logger    *slog.Logger
}

// NewExternalStorage wraps store with the given offload threshold in bytes.
// A nil store disables offload entirely — MaybeOffload always returns an
// inline payload.
func NewExternalStorage(store ports.PayloadStore, thresholdBytes int64, logger *slog.Logger) *ExternalStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalStorage{store: store, threshold: thresholdBytes, logger: logger}
}

// MaybeOffload returns an inline payload unchanged when it's under
// threshold or no store is configured; otherwise it puts the bytes under a
// freshly generated key and returns a Stored payload.
func (s *ExternalStorage) MaybeOffload(body []byte, contentType string) domain.Payload {
	if s.store == nil || int64(len(body)) <= s.threshold {
		return domain.NewInlinePayload(body)
	}

	if contentType == "" {
		contentType = sniffContentType(body)
	}

	key := uuid.NewString()
	ref, err := s.store.Put(key, body, contentType)
	if err != nil {
		s.logger.Warn("payload offload failed, keeping inline", "error", err, "size", len(body))
		return domain.NewInlinePayload(body)
	}

	return domain.NewStoredPayload(s.store.ID(), ref, int64(len(body)), contentType)
}

// Materialize resolves a payload to bytes, fetching from the store when it
// was offloaded. Inline payloads return their bytes unchanged.
func (s *ExternalStorage) Materialize(payload domain.Payload) ([]byte, error) {
	if payload.IsInline() {
		return payload.Bytes, nil
	}

	if s.store == nil {
		return nil, fmt.Errorf("storage: payload references store %q but none is configured", payload.StoreID)
	}

	return s.store.Get(payload.Key)
}

// Cleanup best-effort deletes an offloaded payload. A delete failure is
// logged and otherwise ignored — per policy, cleanup never fails a request.
func (s *ExternalStorage) Cleanup(payload domain.Payload) {
	if !payload.IsStored() || s.store == nil {
		return
	}
	if err := s.store.Delete(payload.Key); err != nil {
		s.logger.Warn("payload cleanup failed", "error", err, "key", payload.Key)
	}
}

// sniffContentType takes a cheap structural peek at body to see whether it
// parses as JSON, without a full unmarshal — gjson.ValidBytes walks the
// token stream once and bails on the first malformed byte.
func sniffContentType(body []byte) string {
	if gjson.ValidBytes(body) {
		return "application/json"
	}
	return "application/octet-stream"
}

// MemoryPayloadStore is an in-process, map-backed ports.PayloadStore. It has
// no durability across restarts and exists for tests and small single-node
// deployments — not the concrete production backend the spec leaves open.
type MemoryPayloadStore struct {
	id string
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemoryPayloadStore builds an empty in-memory store identified by id.
func NewMemoryPayloadStore(id string) *MemoryPayloadStore {
	return &MemoryPayloadStore{id: id, m: make(map[string][]byte)}
}

func (s *MemoryPayloadStore) ID() string { return s.id }

func (s *MemoryPayloadStore) Put(key string, data []byte, _ string) (string, error) {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = cp
	return key, nil
}

func (s *MemoryPayloadStore) Get(ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.m[ref]
	if !ok {
		return nil, fmt.Errorf("storage: key %q not found", ref)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryPayloadStore) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, ref)
	return nil
}

func (s *MemoryPayloadStore) Exists(ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[ref]
	return ok, nil
}
