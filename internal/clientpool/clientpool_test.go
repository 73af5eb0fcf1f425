package clientpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bdurand/async-http-pool/internal/domain"
)

func TestPool_AcquireReusesSameClientForSameOrigin(t *testing.T) {
	p := New(Config{MaxClients: 2}, nil)
	origin := domain.Origin{Scheme: "https", Host: "example.com", Port: "443"}

	c1, err := p.Acquire(origin)
	assert.NoError(t, err)
	c2, err := p.Acquire(origin)
	assert.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, p.Size())
}

func TestPool_EvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	p := New(Config{MaxClients: 2}, nil)
	a := domain.Origin{Scheme: "https", Host: "a.example.com", Port: "443"}
	b := domain.Origin{Scheme: "https", Host: "b.example.com", Port: "443"}
	c := domain.Origin{Scheme: "https", Host: "c.example.com", Port: "443"}

	_, _ = p.Acquire(a)
	_, _ = p.Acquire(b)
	_, _ = p.Acquire(c) // should evict a, the LRU entry

	assert.Equal(t, 2, p.Size())

	// a should be gone, re-acquiring builds a brand new client
	aAgain, err := p.Acquire(a)
	assert.NoError(t, err)
	assert.NotNil(t, aAgain)
}

func TestPool_RecordOutcomeRetiresAfterThreshold(t *testing.T) {
	listener := &recordingListener{}
	p := New(Config{MaxClients: 4, FailureThreshold: 2}, listener)
	origin := domain.Origin{Scheme: "https", Host: "flaky.example.com", Port: "443"}

	client, err := p.Acquire(origin)
	assert.NoError(t, err)

	p.RecordOutcome(client, false)
	assert.False(t, listener.retired)

	p.RecordOutcome(client, false)
	assert.True(t, listener.retired)

	// Retired client is evicted; the origin is refused until its cooldown
	// elapses (see TestPool_RetirementOpensCircuitUntilCooldownElapses).
	assert.Equal(t, 0, p.Size())
}

func TestPool_RecordOutcomeSuccessResetsFailures(t *testing.T) {
	listener := &recordingListener{}
	p := New(Config{MaxClients: 4, FailureThreshold: 2}, listener)
	origin := domain.Origin{Scheme: "https", Host: "example.com", Port: "443"}

	client, _ := p.Acquire(origin)
	p.RecordOutcome(client, false)
	p.RecordOutcome(client, true)
	p.RecordOutcome(client, false)

	assert.False(t, listener.retired)
	assert.True(t, client.Healthy())
}

func TestPool_RetirementOpensCircuitUntilCooldownElapses(t *testing.T) {
	listener := &recordingListener{}
	p := New(Config{MaxClients: 4, FailureThreshold: 1, HealthCheckInterval: 10 * time.Millisecond}, listener)
	origin := domain.Origin{Scheme: "https", Host: "flaky.example.com", Port: "443"}

	client, err := p.Acquire(origin)
	assert.NoError(t, err)

	p.RecordOutcome(client, false)
	assert.True(t, listener.retired)

	_, err = p.Acquire(origin)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)

	fresh, err := p.Acquire(origin)
	assert.NoError(t, err)
	assert.NotSame(t, client, fresh)
}

type recordingListener struct {
	retired bool
}

func (l *recordingListener) ClientHealthy(domain.Origin)   {}
func (l *recordingListener) ClientUnhealthy(domain.Origin) {}
func (l *recordingListener) ClientRetired(domain.Origin)   { l.retired = true }
