package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	repo "github.com/oshokin/drowsiness-alarm/internal/repository/settings"
	"github.com/oshokin/drowsiness-alarm/internal/service/monitor"
)

// Monitor is the part of *monitor.Monitor the service drives.
type Monitor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetMuted(muted bool)
	Snapshot() monitor.Snapshot
}

// service applies operator switches to the monitor and persists them.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// repo handles persistent storage of the settings.
	repo repo.Repository
	// monitor runs the detection loop.
	monitor Monitor
	// settings are the current operator switches.
	settings *control.Settings
	// mu serializes switches.
	mu sync.RWMutex
}

// newService creates a service backed by the provided repository. Persisted
// settings win over defaults.
func newService(ctx context.Context, repository repo.Repository, m Monitor, defaults control.Settings) (*service, error) {
	s := &service{
		repo:     repository,
		monitor:  m,
		settings: defaults.Clone(),
	}

	if s.settings.Timestamp.IsZero() {
		s.settings.Timestamp = time.Now()
	}

	if repository == nil {
		return s, nil
	}

	settings, err := repository.Load(ctx)
	switch {
	case err == nil:
		if settings != nil {
			s.settings = settings
		}
	case errors.Is(err, repo.ErrNotFound):
		// Keep defaults.
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return s, nil
}

// restore applies the current settings to the monitor, typically once at startup.
func (s *service) restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.monitor.SetMuted(s.settings.Muted)

	logger.InfoKV(ctx, "Settings restored",
		"monitoring", s.settings.Monitoring,
		"muted", s.settings.Muted,
		"actor", s.settings.LastActor.String(),
	)

	if !s.settings.Monitoring {
		return nil
	}

	return s.monitor.Start(ctx)
}

// SetMonitoring starts or stops the detection loop and persists the switch.
func (s *service) SetMonitoring(ctx context.Context, actor *control.Actor, enabled bool) (*control.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if enabled {
		err = s.monitor.Start(ctx)
	} else {
		err = s.monitor.Stop(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("switch monitoring: %w", err)
	}

	next := s.settings.Clone()
	next.Monitoring = enabled

	if err = s.save(ctx, actor, next); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Monitoring switched", "monitoring", enabled, "actor", actor.String())

	return s.statusLocked(), nil
}

// SetMuted toggles alarm emission and persists the switch.
func (s *service) SetMuted(ctx context.Context, actor *control.Actor, muted bool) (*control.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.monitor.SetMuted(muted)

	next := s.settings.Clone()
	next.Muted = muted

	if err := s.save(ctx, actor, next); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Mute switched", "muted", muted, "actor", actor.String())

	return s.statusLocked(), nil
}

// Status returns the live status.
func (s *service) Status(ctx context.Context) *control.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.statusLocked()

	logger.DebugKV(ctx, "Status requested", "running", result.Running, "state", result.State)

	return result
}

// save stamps next with actor and persists it. The in-memory settings
// follow the live monitor even when persisting fails.
func (s *service) save(ctx context.Context, actor *control.Actor, next *control.Settings) error {
	next.Timestamp = time.Now()
	next.LastActor = actor.Clone()
	s.settings = next

	if s.repo == nil {
		return nil
	}

	if err := s.repo.Save(ctx, next); err != nil {
		logger.ErrorKV(ctx, "Failed to persist settings", "error", err)

		return fmt.Errorf("persist settings: %w", err)
	}

	return nil
}

// statusLocked builds the status. Must be called with mu held.
func (s *service) statusLocked() *control.Status {
	snapshot := s.monitor.Snapshot()

	status := &control.Status{
		Settings:     s.settings.Clone(),
		Running:      snapshot.Running,
		State:        snapshot.State.String(),
		FacePresent:  snapshot.ScorePresent,
		ClosedFrames: snapshot.Closed,
		Ticks:        snapshot.Stats.Ticks,
		Alarms:       snapshot.Stats.Alarms,
	}

	if snapshot.ScorePresent {
		status.EAR = snapshot.Openness.Average
	}

	if snapshot.SessionID != uuid.Nil {
		status.SessionID = snapshot.SessionID.String()
	}

	return status
}
