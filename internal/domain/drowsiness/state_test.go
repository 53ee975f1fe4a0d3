package drowsiness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStateMachine_OpenScoresStayAwake keeps the machine Awake for open eyes.
func TestStateMachine_OpenScoresStayAwake(t *testing.T) {
	t.Parallel()

	m := NewStateMachine(DefaultThresholds())

	for _, score := range []float64{0.25, 0.3, 0.9, 0.25, 0.41} {
		tr := m.Evaluate(Observed(score))
		require.Equal(t, Awake, tr.To)
		require.Zero(t, tr.Closed)
		require.False(t, tr.BelowThreshold)
	}
}

// TestStateMachine_EntersAlarmedOncePerRun checks the frame threshold and the single entry.
func TestStateMachine_EntersAlarmedOncePerRun(t *testing.T) {
	t.Parallel()

	m := NewStateMachine(DefaultThresholds())

	entries := 0

	for i := 1; i <= 25; i++ {
		tr := m.Evaluate(Observed(0.1))
		require.Equal(t, i, tr.Closed)

		if tr.Entered() {
			entries++

			require.Equal(t, 10, i)
		}

		if i < 10 {
			require.Equal(t, Closing, tr.To)
		} else {
			require.Equal(t, Alarmed, tr.To)
		}
	}

	require.Equal(t, 1, entries)
}

// TestStateMachine_DisqualifyingFrameResets covers open and absent resets below the threshold.
func TestStateMachine_DisqualifyingFrameResets(t *testing.T) {
	t.Parallel()

	for name, breaker := range map[string]Observation{
		"open":   Observed(0.3),
		"absent": Absent(),
	} {
		m := NewStateMachine(DefaultThresholds())

		for range 9 {
			m.Evaluate(Observed(0.15))
		}

		tr := m.Evaluate(breaker)
		require.Equal(t, Awake, tr.To, name)
		require.Zero(t, m.Closed(), name)

		// A fresh run of ten is needed again.
		for i := range 9 {
			tr = m.Evaluate(Observed(0.15))
			require.False(t, tr.Entered(), "%s frame %d", name, i)
		}

		tr = m.Evaluate(Observed(0.15))
		require.True(t, tr.Entered(), name)
	}
}

// TestStateMachine_ReleasesImmediatelyByDefault clears Alarmed on one open or absent frame.
func TestStateMachine_ReleasesImmediatelyByDefault(t *testing.T) {
	t.Parallel()

	for _, breaker := range []Observation{Observed(0.4), Absent()} {
		m := NewStateMachine(DefaultThresholds())

		for range 10 {
			m.Evaluate(Observed(0.1))
		}

		require.Equal(t, Alarmed, m.State())

		tr := m.Evaluate(breaker)
		require.True(t, tr.Released())
		require.Equal(t, Awake, m.State())
		require.Zero(t, m.Closed())
	}
}

// TestStateMachine_ReleaseFrames requires a run of disqualifying frames to release.
func TestStateMachine_ReleaseFrames(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	thresholds.Frames = 3
	thresholds.ReleaseFrames = 3

	m := NewStateMachine(thresholds)

	for range 3 {
		m.Evaluate(Observed(0.1))
	}

	require.Equal(t, Alarmed, m.State())

	require.True(t, m.Evaluate(Observed(0.4)).Held())
	require.True(t, m.Evaluate(Absent()).Held())

	// A closed frame breaks the release streak.
	tr := m.Evaluate(Observed(0.1))
	require.True(t, tr.Held())
	require.True(t, tr.BelowThreshold)

	require.True(t, m.Evaluate(Observed(0.4)).Held())
	require.True(t, m.Evaluate(Observed(0.4)).Held())
	require.True(t, m.Evaluate(Observed(0.4)).Released())
}

// TestStateMachine_HoldOnFaceLoss keeps the alarm while the face is missing.
func TestStateMachine_HoldOnFaceLoss(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	thresholds.HoldOnFaceLoss = true

	m := NewStateMachine(thresholds)

	for range 10 {
		m.Evaluate(Observed(0.1))
	}

	for range 5 {
		tr := m.Evaluate(Absent())
		require.True(t, tr.Held())
		require.False(t, tr.BelowThreshold)
		require.Zero(t, tr.Closed)
	}

	require.True(t, m.Evaluate(Observed(0.3)).Released())
}

// TestStateMachine_ResetAndDefaults covers Reset and fallback thresholds.
func TestStateMachine_ResetAndDefaults(t *testing.T) {
	t.Parallel()

	m := NewStateMachine(Thresholds{})
	require.Equal(t, DefaultThresholds(), m.Thresholds())

	for range 12 {
		m.Evaluate(Observed(0.05))
	}

	m.Reset()
	require.Equal(t, Awake, m.State())
	require.Zero(t, m.Closed())
}

// TestState_String covers the textual names.
func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "awake", Awake.String())
	require.Equal(t, "closing", Closing.String())
	require.Equal(t, "alarmed", Alarmed.String())
	require.Equal(t, "unknown", State(42).String())
}
