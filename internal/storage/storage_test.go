package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalStorage_InlineUnderThreshold(t *testing.T) {
	store := NewMemoryPayloadStore("mem")
	es := NewExternalStorage(store, 1024, nil)

	payload := es.MaybeOffload([]byte("short body"), "text/plain")
	assert.True(t, payload.IsInline())
	assert.Equal(t, "short body", string(payload.Bytes))
}

func TestExternalStorage_OffloadsOverThreshold(t *testing.T) {
	store := NewMemoryPayloadStore("mem")
	es := NewExternalStorage(store, 4, nil)

	body := []byte("this body is definitely over four bytes")
	payload := es.MaybeOffload(body, "text/plain")

	assert.True(t, payload.IsStored())
	assert.Equal(t, "mem", payload.StoreID)
	assert.Equal(t, int64(len(body)), payload.Size)

	materialized, err := es.Materialize(payload)
	assert.NoError(t, err)
	assert.Equal(t, body, materialized)
}

func TestExternalStorage_NoStoreConfigured_AlwaysInline(t *testing.T) {
	es := NewExternalStorage(nil, 1, nil)

	body := []byte("anything, regardless of size, stays inline without a store")
	payload := es.MaybeOffload(body, "")
	assert.True(t, payload.IsInline())
}

func TestExternalStorage_StoreFailure_DegradesToInline(t *testing.T) {
	es := NewExternalStorage(failingStore{}, 0, nil)

	payload := es.MaybeOffload([]byte("x"), "text/plain")
	assert.True(t, payload.IsInline())
}

func TestExternalStorage_CleanupIsBestEffort(t *testing.T) {
	store := NewMemoryPayloadStore("mem")
	es := NewExternalStorage(store, 0, nil)

	payload := es.MaybeOffload([]byte("offloaded"), "text/plain")
	assert.True(t, payload.IsStored())

	es.Cleanup(payload)
	exists, err := store.Exists(payload.Key)
	assert.NoError(t, err)
	assert.False(t, exists)

	// Cleaning up an already-deleted (or never-stored) payload must not panic.
	es.Cleanup(payload)
}

func TestMemoryPayloadStore_RoundTrip(t *testing.T) {
	store := NewMemoryPayloadStore("mem")

	ref, err := store.Put("k1", []byte("hello"), "text/plain")
	assert.NoError(t, err)

	data, err := store.Get(ref)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	exists, err := store.Exists(ref)
	assert.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, store.Delete(ref))

	_, err = store.Get(ref)
	assert.Error(t, err)
}

func TestMemoryPayloadStore_GetDoesNotExposeInternalSlice(t *testing.T) {
	store := NewMemoryPayloadStore("mem")
	_, _ = store.Put("k1", []byte("hello"), "text/plain")

	data, _ := store.Get("k1")
	data[0] = 'X'

	data2, _ := store.Get("k1")
	assert.Equal(t, "hello", string(data2))
}

type failingStore struct{}

func (failingStore) ID() string { return "failing" }
func (failingStore) Put(string, []byte, string) (string, error) {
	return "", assertErr
}
func (failingStore) Get(string) ([]byte, error)      { return nil, assertErr }
func (failingStore) Delete(string) error              { return assertErr }
func (failingStore) Exists(string) (bool, error)      { return false, assertErr }

var assertErr = errFailingStore{}

type errFailingStore struct{}

func (errFailingStore) Error() string { return "simulated store failure" }
