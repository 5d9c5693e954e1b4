package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	m := New()
	assert.Equal(t, StateIdle, m.State())

	require.True(t, m.Begin())
	assert.Equal(t, StateProcessing, m.State())

	m.Finish(20 * time.Millisecond)
	assert.Equal(t, StateResultDisplay, m.State())

	assert.Eventually(t, func() bool { return m.State() == StateIdle },
		time.Second, 5*time.Millisecond)
}

func TestMachineGatesOverlappingScans(t *testing.T) {
	m := New()
	require.True(t, m.Begin())

	// A second scan while the first is processing is turned away.
	assert.False(t, m.Begin())

	m.Finish(30 * time.Millisecond)

	// Still gated while the result is on screen.
	assert.False(t, m.Begin())

	assert.Eventually(t, func() bool { return m.Begin() },
		time.Second, 5*time.Millisecond)
}

func TestMachineFinishOnlyFromProcessing(t *testing.T) {
	m := New()
	m.Finish(10 * time.Millisecond)
	assert.Equal(t, StateIdle, m.State(), "finish without begin is a no-op")
}

func TestMachineStopCancelsTimer(t *testing.T) {
	m := New()
	require.True(t, m.Begin())
	m.Finish(time.Hour)
	m.Stop()
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, m.Begin(), "stopped machine accepts scans immediately")
}

func TestStationsAreIndependent(t *testing.T) {
	s := NewStations()
	gate := s.Get("gate-1")
	lobby := s.Get("lobby")

	require.True(t, gate.Begin())
	assert.True(t, lobby.Begin(), "one busy station does not gate another")
	assert.Same(t, gate, s.Get("gate-1"))

	s.StopAll()
	assert.Equal(t, StateIdle, gate.State())
	assert.Equal(t, StateIdle, lobby.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "result_display", StateResultDisplay.String())
}
