package control

import (
	"errors"
	"strings"
	"time"
)

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user who triggered the action.
	Username string
}

// errMalformedActor is returned by ParseActor for values without user@host.
var errMalformedActor = errors.New("actor must look like user@host")

// ParseActor parses the user@host form produced by String. Usernames may
// themselves contain '@'; hostnames may not.
func ParseActor(s string) (*Actor, error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return nil, errMalformedActor
	}

	return &Actor{Hostname: s[at+1:], Username: s[:at]}, nil
}

// String returns user@host.
func (a *Actor) String() string {
	if a == nil {
		return ""
	}

	return a.Username + "@" + a.Hostname
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Settings are the operator switches of the daemon.
type Settings struct {
	// Timestamp is when the settings were last changed.
	Timestamp time.Time
	// LastActor is the user who last changed the settings.
	LastActor *Actor
	// Monitoring tells whether the detection loop should run.
	Monitoring bool
	// Muted suppresses StartAlarm and Pulse.
	Muted bool
}

// Clone returns a copy of the settings to avoid leaking internal references.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}

	return &Settings{
		Timestamp:  s.Timestamp,
		LastActor:  s.LastActor.Clone(),
		Monitoring: s.Monitoring,
		Muted:      s.Muted,
	}
}

// Status is the live view of the daemon.
type Status struct {
	// Settings are the persisted operator switches.
	Settings *Settings
	// Running is true while the detection loop runs. It can differ from
	// Settings.Monitoring when the frame source ran out.
	Running bool
	// State is the alertness state name.
	State string
	// FacePresent tells whether the last frame had a usable face.
	FacePresent bool
	// EAR is the last averaged eye aspect ratio, valid when FacePresent.
	EAR float64
	// ClosedFrames is the current closed-eye run length.
	ClosedFrames int
	// SessionID identifies the active alarm session, empty outside one.
	SessionID string
	// Ticks counts processed frames of the current run.
	Ticks uint64
	// Alarms counts alarm sessions of the current run.
	Alarms uint64
}

// Clone returns a deep copy of the status.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Settings = s.Settings.Clone()

	return &cloned
}
