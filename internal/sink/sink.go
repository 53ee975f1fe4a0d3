// Package sink contains the alarm side-effect sinks and helpers to combine them.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

// Emitter performs the side effects of one alarm action.
type Emitter interface {
	Emit(ctx context.Context, action drowsiness.Action) error
}

// Multi fans every action out to all emitters in order.
type Multi []Emitter

// Emit calls every emitter and joins their errors. A failing emitter does not
// prevent the others from running.
func (m Multi) Emit(ctx context.Context, action drowsiness.Action) error {
	var errs []error

	for i, e := range m {
		if err := e.Emit(ctx, action); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Log writes every action to the logger. Closed sessions are reported with
// their duration and severity.
type Log struct{}

// Emit logs the action.
func (Log) Emit(ctx context.Context, action drowsiness.Action) error {
	ctx = logger.WithName(ctx, "alarm")

	switch action.Signal {
	case drowsiness.StartAlarm:
		logger.WarnKV(ctx, "Alarm raised", "session_id", sessionID(action))
	case drowsiness.Pulse:
		logger.DebugKV(ctx, "Alarm pulse", "session_id", sessionID(action))
	case drowsiness.StopAlarm:
		s := action.Session
		if s == nil {
			logger.Info(ctx, "Alarm stopped")

			return nil
		}

		logger.InfoKV(ctx, "Alarm stopped",
			"session_id", s.ID.String(),
			"duration", s.Duration(time.Now()).String(),
			"pulses", s.Pulses,
			"min_ear", s.MinScore,
			"severity", string(s.Severity),
		)
	case drowsiness.NoOp:
	}

	return nil
}

func sessionID(action drowsiness.Action) string {
	if action.Session == nil {
		return ""
	}

	return action.Session.ID.String()
}
