package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/drowsiness-alarm/internal/service/monitor"
)

const (
	// TypeStateInit is the first message every client receives.
	TypeStateInit = "state_init"
	// TypeSnapshot is broadcast once per processed frame.
	TypeSnapshot = "snapshot"
)

// Envelope is the wire format of every message: {type, ts, data}.
type Envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SnapshotData is the externally consumable view of a monitor snapshot.
type SnapshotData struct {
	Running      bool      `json:"running"`
	Muted        bool      `json:"muted"`
	State        string    `json:"state"`
	FacePresent  bool      `json:"face_present"`
	EAR          *float64  `json:"ear,omitempty"`
	LeftEAR      *float64  `json:"left_ear,omitempty"`
	RightEAR     *float64  `json:"right_ear,omitempty"`
	ClosedFrames int       `json:"closed_frames"`
	SessionID    string    `json:"session_id,omitempty"`
	Signal       string    `json:"signal"`
	FrameSeq     uint64    `json:"frame_seq"`
	Stats        StatsData `json:"stats"`
}

// StatsData mirrors monitor.Stats.
type StatsData struct {
	Ticks            uint64 `json:"ticks"`
	NoFace           uint64 `json:"no_face"`
	Degenerate       uint64 `json:"degenerate"`
	ProviderFailures uint64 `json:"provider_failures"`
	SourceFailures   uint64 `json:"source_failures"`
	SinkFailures     uint64 `json:"sink_failures"`
	Alarms           uint64 `json:"alarms"`
}

// NewSnapshotData converts a monitor snapshot.
func NewSnapshotData(s monitor.Snapshot) SnapshotData {
	data := SnapshotData{
		Running:      s.Running,
		Muted:        s.Muted,
		State:        s.State.String(),
		FacePresent:  s.ScorePresent,
		ClosedFrames: s.Closed,
		Signal:       s.Signal.String(),
		FrameSeq:     s.FrameSeq,
		Stats:        StatsData(s.Stats),
	}

	if s.ScorePresent {
		average, left, right := s.Openness.Average, s.Openness.Left, s.Openness.Right
		data.EAR, data.LeftEAR, data.RightEAR = &average, &left, &right
	}

	if s.SessionID != uuid.Nil {
		data.SessionID = s.SessionID.String()
	}

	return data
}

// encode builds a text frame for the given message type.
func encode(messageType string, s monitor.Snapshot) ([]byte, error) {
	data, err := json.Marshal(NewSnapshotData(s))
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", messageType, err)
	}

	envelope := Envelope{Type: messageType, Data: data}
	if !s.At.IsZero() {
		ts := s.At.UTC()
		envelope.Ts = &ts
	}

	msg, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", messageType, err)
	}

	return msg, nil
}
