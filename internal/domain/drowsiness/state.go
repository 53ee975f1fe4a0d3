package drowsiness

// State is the alertness of the monitored person.
type State int

const (
	// Awake means no closed-eye run is in progress.
	Awake State = iota
	// Closing means closed frames are being counted but the alarm is not confirmed.
	Closing
	// Alarmed means the closed-eye run reached the frame threshold.
	Alarmed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Awake:
		return "awake"
	case Closing:
		return "closing"
	case Alarmed:
		return "alarmed"
	default:
		return "unknown"
	}
}

// Observation is the optional per-frame score fed into the state machine.
// Present is false when no face was seen or its geometry was unusable.
type Observation struct {
	Score   float64
	Present bool
}

// Observed returns a present observation with the given score.
func Observed(score float64) Observation {
	return Observation{Score: score, Present: true}
}

// Absent returns an observation for a frame without a usable face.
func Absent() Observation {
	return Observation{}
}

// Thresholds configures the state machine.
type Thresholds struct {
	// EAR is the ratio below which a frame counts as closed.
	EAR float64
	// Frames is the closed run length that raises the alarm.
	Frames int
	// ReleaseFrames is the run of open (or faceless) frames that clears the alarm.
	ReleaseFrames int
	// HoldOnFaceLoss makes faceless frames neither clear nor extend the alarm.
	HoldOnFaceLoss bool
}

// DefaultThresholds returns 0.25 / 10 frames with immediate release on face loss.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EAR:           0.25,
		Frames:        10,
		ReleaseFrames: 1,
	}
}

// Transition describes the outcome of one Evaluate call.
type Transition struct {
	From State
	To   State
	// Closed is the consecutive closed-frame count after the observation.
	Closed int
	// BelowThreshold is true when a face was present with a closed-eye score.
	BelowThreshold bool
	// Observation is the input that produced this transition.
	Observation Observation
}

// Entered reports a transition into Alarmed.
func (t Transition) Entered() bool {
	return t.From != Alarmed && t.To == Alarmed
}

// Released reports a transition out of Alarmed.
func (t Transition) Released() bool {
	return t.From == Alarmed && t.To != Alarmed
}

// Held reports that the machine stayed in Alarmed.
func (t Transition) Held() bool {
	return t.From == Alarmed && t.To == Alarmed
}

// StateMachine debounces per-frame observations into an alertness state.
// It is not safe for concurrent use; the detection loop owns it.
type StateMachine struct {
	thresholds Thresholds
	state      State
	closed     int
	release    int
}

// NewStateMachine creates an Awake machine. Non-positive counts fall back to defaults.
func NewStateMachine(thresholds Thresholds) *StateMachine {
	defaults := DefaultThresholds()

	if thresholds.EAR <= 0 {
		thresholds.EAR = defaults.EAR
	}

	if thresholds.Frames <= 0 {
		thresholds.Frames = defaults.Frames
	}

	if thresholds.ReleaseFrames <= 0 {
		thresholds.ReleaseFrames = defaults.ReleaseFrames
	}

	return &StateMachine{
		thresholds: thresholds,
	}
}

// Evaluate applies one observation and returns the resulting transition.
func (m *StateMachine) Evaluate(obs Observation) Transition {
	from := m.state
	below := obs.Present && obs.Score < m.thresholds.EAR

	if below {
		m.closed++
		m.release = 0

		switch {
		case m.state == Alarmed:
			// Already raised.
		case m.closed >= m.thresholds.Frames:
			m.state = Alarmed
		default:
			m.state = Closing
		}
	} else {
		m.closed = 0
		m.settle(obs)
	}

	return Transition{
		From:           from,
		To:             m.state,
		Closed:         m.closed,
		BelowThreshold: below,
		Observation:    obs,
	}
}

// settle handles an open or faceless frame.
func (m *StateMachine) settle(obs Observation) {
	if m.state != Alarmed {
		m.state = Awake
		return
	}

	if !obs.Present && m.thresholds.HoldOnFaceLoss {
		return
	}

	m.release++
	if m.release >= m.thresholds.ReleaseFrames {
		m.state = Awake
		m.release = 0
	}
}

// Reset returns the machine to Awake with zeroed counters.
func (m *StateMachine) Reset() {
	m.state = Awake
	m.closed = 0
	m.release = 0
}

// State returns the current state.
func (m *StateMachine) State() State {
	return m.state
}

// Closed returns the consecutive closed-frame count.
func (m *StateMachine) Closed() int {
	return m.closed
}

// Thresholds returns the effective thresholds.
func (m *StateMachine) Thresholds() Thresholds {
	return m.thresholds
}
