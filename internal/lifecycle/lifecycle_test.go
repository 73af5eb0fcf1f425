package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_InitialState(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Stopped, m.Current())
	assert.False(t, m.AcceptingNew())
	assert.False(t, m.AnyWorkPossible())
}

func TestManager_HappyPathSequence(t *testing.T) {
	m := NewManager()

	assert.NoError(t, m.Start())
	assert.Equal(t, Starting, m.Current())

	assert.NoError(t, m.MarkRunning())
	assert.Equal(t, Running, m.Current())
	assert.True(t, m.AcceptingNew())
	assert.True(t, m.AnyWorkPossible())

	assert.NoError(t, m.BeginDrain())
	assert.Equal(t, Draining, m.Current())
	assert.False(t, m.AcceptingNew())
	assert.True(t, m.AnyWorkPossible())

	assert.NoError(t, m.BeginStop())
	assert.Equal(t, Stopping, m.Current())
	assert.False(t, m.AnyWorkPossible())

	assert.NoError(t, m.MarkStopped())
	assert.Equal(t, Stopped, m.Current())
}

func TestManager_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	m := NewManager()

	err := m.MarkRunning()
	assert.Error(t, err)
	assert.Equal(t, Stopped, m.Current())

	var te *TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestManager_ObserverNotifiedOnSuccessfulTransitionOnly(t *testing.T) {
	var mu sync.Mutex
	var transitions [][2]State

	m := NewManager(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, [2]State{from, to})
	})

	assert.NoError(t, m.Start())
	assert.Error(t, m.BeginDrain()) // invalid from Starting

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]State{{Stopped, Starting}}, transitions)
}

func TestManager_ConcurrentStartOnlySucceedsOnce(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	successes := int32(0)
	var mu sync.Mutex

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Start(); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	assert.Equal(t, Starting, m.Current())
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Stopped:  "stopped",
		Starting: "starting",
		Running:  "running",
		Draining: "draining",
		Stopping: "stopping",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
