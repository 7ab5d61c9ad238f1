package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Transitions(t *testing.T) {
	p := NewPublisher()
	assert.Equal(t, PhaseIdle, p.Current().Phase)

	assert.False(t, p.reset(), "idle stays idle")

	require.NoError(t, p.tryBegin())
	assert.ErrorIs(t, p.tryBegin(), ErrSyncInProgress)
	assert.False(t, p.reset())

	p.succeed("sync complete")
	assert.Equal(t, "success: sync complete", p.Current().String())

	// A new run may start straight from Success or Error.
	require.NoError(t, p.tryBegin())
	p.fail("remote fetch failed")
	assert.Equal(t, PhaseError, p.Current().Phase)

	assert.True(t, p.reset())
	assert.Equal(t, PhaseIdle, p.Current().Phase)
	assert.Empty(t, p.Current().Message)
}

func TestPublisher_Subscribe(t *testing.T) {
	p := NewPublisher()

	ch, cancel := p.Subscribe(4)
	first := <-ch
	assert.Equal(t, PhaseIdle, first.Phase, "subscribers get the current state first")

	require.NoError(t, p.tryBegin())
	p.succeed("done")

	assert.Equal(t, PhaseSyncing, (<-ch).Phase)
	last := <-ch
	assert.Equal(t, PhaseSuccess, last.Phase)
	assert.Equal(t, "done", last.Message)

	assert.Equal(t, 1, p.Subscribers())
	cancel()
	cancel()
	assert.Equal(t, 0, p.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestPublisher_SlowSubscriberSeesLatest(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(1)
	defer cancel()

	// Never drained while transitions happen.
	require.NoError(t, p.tryBegin())
	p.fail("boom")

	got := <-ch
	assert.Equal(t, PhaseError, got.Phase)
	assert.Equal(t, "boom", got.Message)
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(State{Phase: PhaseSyncing})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"syncing"`)

	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"error","message":"x"}`), &s))
	assert.Equal(t, PhaseError, s.Phase)

	assert.Error(t, json.Unmarshal([]byte(`{"phase":"weird"}`), &s))
}
