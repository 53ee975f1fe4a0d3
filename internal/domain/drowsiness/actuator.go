package drowsiness

import (
	"time"

	"github.com/google/uuid"
)

// Signal is the side effect requested from the alarm sink for one frame.
type Signal int

const (
	// NoOp requests nothing.
	NoOp Signal = iota
	// StartAlarm opens a notification for a new session.
	StartAlarm
	// Pulse re-notifies while the session persists.
	Pulse
	// StopAlarm ends the session's notifications.
	StopAlarm
)

// String implements fmt.Stringer.
func (s Signal) String() string {
	switch s {
	case NoOp:
		return "noop"
	case StartAlarm:
		return "start"
	case Pulse:
		return "pulse"
	case StopAlarm:
		return "stop"
	default:
		return "unknown"
	}
}

// Session is one continuous alarm, from entering Alarmed until leaving it.
type Session struct {
	// ID identifies the session across sinks and logs.
	ID uuid.UUID
	// StartedAt is when the alarm was raised.
	StartedAt time.Time
	// EndedAt is zero while the session is active.
	EndedAt time.Time
	// Pulses counts re-notifications delivered after the start.
	Pulses int
	// MinScore is the lowest averaged ratio seen during the session.
	MinScore float64
	// Announced is true once StartAlarm has been delivered.
	Announced bool
	// Severity is set when the session ends.
	Severity Severity
}

// Duration returns the session length, measured to now while it is active.
func (s *Session) Duration(now time.Time) time.Duration {
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}

	return now.Sub(s.StartedAt)
}

// Clone returns a copy of the session to avoid leaking internal references.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// Action is what the actuator decided for one frame.
type Action struct {
	Signal Signal
	// Session is a snapshot of the affected session, nil for NoOp outside a session.
	Session *Session
}

// Actuator maps state machine transitions onto alarm signals and owns the
// active Session. It is not safe for concurrent use.
type Actuator struct {
	earThreshold float64
	session      *Session
	newID        func() uuid.UUID
}

// NewActuator creates an actuator grading sessions against earThreshold.
func NewActuator(earThreshold float64) *Actuator {
	return &Actuator{
		earThreshold: earThreshold,
		newID:        uuid.New,
	}
}

// Actuate decides the signal for transition t. Mute suppresses StartAlarm and
// Pulse only; a session whose start was muted announces itself with StartAlarm
// on the first unmuted closed frame.
func (a *Actuator) Actuate(t Transition, muted bool, now time.Time) Action {
	switch {
	case t.Entered():
		a.open(t, now)

		return a.notify(muted)
	case t.Held():
		if a.session == nil {
			a.open(t, now)

			return a.notify(muted)
		}

		if !t.BelowThreshold {
			return Action{Signal: NoOp, Session: a.session.Clone()}
		}

		a.session.MinScore = min(a.session.MinScore, t.Observation.Score)

		return a.notify(muted)
	case t.Released():
		ended := a.Abort(now)
		if ended == nil {
			return Action{Signal: NoOp}
		}

		return Action{Signal: StopAlarm, Session: ended}
	default:
		return Action{Signal: NoOp}
	}
}

// Active returns a snapshot of the running session or nil.
func (a *Actuator) Active() *Session {
	return a.session.Clone()
}

// Abort ends the running session without deciding a signal and returns its final snapshot.
func (a *Actuator) Abort(now time.Time) *Session {
	if a.session == nil {
		return nil
	}

	ended := a.session
	a.session = nil

	ended.EndedAt = now
	ended.Severity = Classify(ended.MinScore, a.earThreshold, ended.Duration(now))

	return ended
}

// open starts a new session.
func (a *Actuator) open(t Transition, now time.Time) {
	a.session = &Session{
		ID:        a.newID(),
		StartedAt: now,
		MinScore:  t.Observation.Score,
	}
}

// notify emits StartAlarm for an unannounced session and Pulse afterwards.
func (a *Actuator) notify(muted bool) Action {
	if muted {
		return Action{Signal: NoOp, Session: a.session.Clone()}
	}

	if !a.session.Announced {
		a.session.Announced = true

		return Action{Signal: StartAlarm, Session: a.session.Clone()}
	}

	a.session.Pulses++

	return Action{Signal: Pulse, Session: a.session.Clone()}
}
