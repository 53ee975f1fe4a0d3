package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/domain/frame"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

// FrameSource yields frames at its own pace. Next must return promptly once ctx is canceled.
// Returning io.EOF ends the monitoring session.
type FrameSource interface {
	Next(ctx context.Context) (*frame.Frame, error)
}

// LandmarkProvider detects zero or more faces in a frame.
type LandmarkProvider interface {
	Detect(ctx context.Context, f *frame.Frame) ([]landmark.Set, error)
}

// Sink performs alarm side effects for StartAlarm, Pulse and StopAlarm actions.
type Sink interface {
	Emit(ctx context.Context, action drowsiness.Action) error
}

// Observer receives the snapshot published at the end of every tick.
// Publish is called from the loop goroutine and must not block.
type Observer interface {
	Publish(ctx context.Context, snapshot Snapshot)
}

var (
	// ErrProviderFailure marks a tick whose landmark detection failed.
	ErrProviderFailure = errors.New("landmark provider failure")
	// ErrCancelledTick marks a tick abandoned because monitoring stopped.
	ErrCancelledTick = errors.New("tick cancelled")
)

// sourceRetryDelay is the pause after a failed frame read.
const sourceRetryDelay = time.Second

// Stats counts tick outcomes of the current monitoring session.
type Stats struct {
	Ticks            uint64
	NoFace           uint64
	Degenerate       uint64
	ProviderFailures uint64
	SourceFailures   uint64
	SinkFailures     uint64
	Alarms           uint64
}

// Snapshot is the externally observable state, published once per tick.
type Snapshot struct {
	Running bool
	Muted   bool
	State   drowsiness.State
	// Openness is valid only when ScorePresent is true.
	Openness     drowsiness.Openness
	ScorePresent bool
	Closed       int
	// SessionID is uuid.Nil outside an alarm session.
	SessionID uuid.UUID
	Signal    drowsiness.Signal
	FrameSeq  uint64
	At        time.Time
	Stats     Stats
}

// Monitor runs the detection loop. Start and Stop may be called from any goroutine.
type Monitor struct {
	source    FrameSource
	provider  LandmarkProvider
	sink      Sink
	observers []Observer

	thresholds drowsiness.Thresholds
	machine    *drowsiness.StateMachine
	actuator   *drowsiness.Actuator
	stats      Stats

	muted    atomic.Bool
	snapshot atomic.Pointer[Snapshot]

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThresholds sets the state machine thresholds.
func WithThresholds(thresholds drowsiness.Thresholds) Option {
	return func(m *Monitor) {
		m.thresholds = thresholds
	}
}

// WithObservers registers snapshot observers.
func WithObservers(observers ...Observer) Option {
	return func(m *Monitor) {
		m.observers = append(m.observers, observers...)
	}
}

// WithMuted sets the initial mute state.
func WithMuted(muted bool) Option {
	return func(m *Monitor) {
		m.muted.Store(muted)
	}
}

// New creates a stopped monitor.
func New(source FrameSource, provider LandmarkProvider, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		source:     source,
		provider:   provider,
		sink:       sink,
		thresholds: drowsiness.DefaultThresholds(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.machine = drowsiness.NewStateMachine(m.thresholds)
	m.actuator = drowsiness.NewActuator(m.machine.Thresholds().EAR)
	m.snapshot.Store(&Snapshot{State: drowsiness.Awake})

	return m
}

// Start launches a monitoring session from a clean Awake state.
// It is a no-op while a session is running. The session outlives ctx's
// cancellation; only Stop ends it.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning() {
		return nil
	}

	if m.cancel != nil {
		// The previous session ended on its own.
		m.cancel()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logger.WithName(runCtx, "monitor")

	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	m.stats = Stats{}
	m.store(runCtx, Snapshot{
		Running: true,
		State:   drowsiness.Awake,
		At:      time.Now(),
	})

	logger.InfoKV(runCtx, "Monitoring started", "thresholds", m.machine.Thresholds())

	go m.run(runCtx, done)

	return nil
}

// Stop ends the monitoring session and waits for the loop to finish. An
// in-flight landmark detection is abandoned. Stop is a no-op when stopped.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		return nil
	}

	m.cancel()

	select {
	case <-m.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for detection loop: %w", ctx.Err())
	}

	m.cancel, m.done = nil, nil

	return nil
}

// Running reports whether a monitoring session is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isRunning()
}

// SetMuted toggles alarm emission. It takes effect on the next tick.
func (m *Monitor) SetMuted(muted bool) {
	m.muted.Store(muted)
}

// Muted reports the mute flag.
func (m *Monitor) Muted() bool {
	return m.muted.Load()
}

// Snapshot returns the latest published snapshot.
func (m *Monitor) Snapshot() Snapshot {
	snapshot := *m.snapshot.Load()
	snapshot.Muted = m.muted.Load()

	return snapshot
}

// isRunning must be called with mu held.
func (m *Monitor) isRunning() bool {
	if m.done == nil {
		return false
	}

	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// run is the loop goroutine.
func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.finish(ctx)

	for {
		f, err := m.source.Next(ctx)

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			logger.Info(ctx, "Frame source exhausted")
			return
		case err != nil:
			m.stats.SourceFailures++
			logger.WarnKV(ctx, "Frame source failed", "error", err)

			if !sleep(ctx, sourceRetryDelay) {
				return
			}

			continue
		}

		obs, openness, err := m.observe(ctx, f)
		if errors.Is(err, ErrCancelledTick) {
			logger.DebugKV(ctx, "Tick abandoned", "frame_seq", f.Seq)
			return
		}

		m.apply(ctx, f, obs, openness)
	}
}

// detection carries a provider result across goroutines.
type detection struct {
	sets []landmark.Set
	err  error
}

// observe runs the provider and the metric for one frame. Any failure
// collapses into an absent observation; only cancellation is reported.
func (m *Monitor) observe(ctx context.Context, f *frame.Frame) (drowsiness.Observation, drowsiness.Openness, error) {
	result := make(chan detection, 1)

	go func() {
		sets, err := m.provider.Detect(ctx, f)
		result <- detection{sets: sets, err: err}
	}()

	var r detection

	select {
	case <-ctx.Done():
		return drowsiness.Absent(), drowsiness.Openness{}, ErrCancelledTick
	case r = <-result:
	}

	if ctx.Err() != nil {
		return drowsiness.Absent(), drowsiness.Openness{}, ErrCancelledTick
	}

	if r.err != nil {
		m.stats.ProviderFailures++
		logger.WarnKV(ctx, "Landmark detection failed",
			"frame_seq", f.Seq, "error", fmt.Errorf("%w: %w", ErrProviderFailure, r.err))

		return drowsiness.Absent(), drowsiness.Openness{}, nil
	}

	if len(r.sets) == 0 {
		m.stats.NoFace++

		return drowsiness.Absent(), drowsiness.Openness{}, nil
	}

	// Single-subject monitoring: extra faces are ignored.
	openness, err := drowsiness.Measure(&r.sets[0])
	if err != nil {
		m.stats.Degenerate++
		logger.DebugKV(ctx, "Unusable face geometry", "frame_seq", f.Seq, "error", err)

		return drowsiness.Absent(), drowsiness.Openness{}, nil
	}

	return drowsiness.Observed(openness.Average), openness, nil
}

// apply advances the state machine and performs the decided alarm action.
func (m *Monitor) apply(ctx context.Context, f *frame.Frame, obs drowsiness.Observation, openness drowsiness.Openness) {
	m.stats.Ticks++

	now := time.Now()
	transition := m.machine.Evaluate(obs)
	action := m.actuator.Actuate(transition, m.muted.Load(), now)

	switch {
	case transition.Entered():
		m.stats.Alarms++
		logger.InfoKV(ctx, "Drowsiness detected", "closed_frames", transition.Closed, "ear", obs.Score)
	case transition.Released():
		logger.InfoKV(ctx, "Alertness restored", "face_present", obs.Present, "ear", obs.Score)
	}

	m.emit(ctx, action)

	snapshot := Snapshot{
		Running:      true,
		State:        transition.To,
		Openness:     openness,
		ScorePresent: obs.Present,
		Closed:       transition.Closed,
		Signal:       action.Signal,
		FrameSeq:     f.Seq,
		At:           now,
	}

	if active := m.actuator.Active(); active != nil {
		snapshot.SessionID = active.ID
	}

	m.store(ctx, snapshot)

	logger.DebugKV(ctx, "Tick processed",
		"frame_seq", f.Seq,
		"state", transition.To.String(),
		"ear", obs.Score,
		"face_present", obs.Present,
		"signal", action.Signal.String(),
	)
}

// emit forwards a non-NoOp action to the sink.
func (m *Monitor) emit(ctx context.Context, action drowsiness.Action) {
	if action.Signal == drowsiness.NoOp || m.sink == nil {
		return
	}

	if err := m.sink.Emit(ctx, action); err != nil {
		m.stats.SinkFailures++
		logger.ErrorKV(ctx, "Alarm sink failed", "signal", action.Signal.String(), "error", err)
	}
}

// finish stops an active alarm and resets the engine when the loop exits.
func (m *Monitor) finish(ctx context.Context) {
	cleanupCtx := context.WithoutCancel(ctx)
	now := time.Now()

	if ended := m.actuator.Abort(now); ended != nil {
		m.emit(cleanupCtx, drowsiness.Action{Signal: drowsiness.StopAlarm, Session: ended})
	}

	m.machine.Reset()

	m.store(cleanupCtx, Snapshot{
		State:  drowsiness.Awake,
		Signal: drowsiness.NoOp,
		At:     now,
	})

	logger.InfoKV(cleanupCtx, "Monitoring stopped", "ticks", m.stats.Ticks, "alarms", m.stats.Alarms)
}

// store publishes a snapshot to readers and observers.
func (m *Monitor) store(ctx context.Context, snapshot Snapshot) {
	snapshot.Stats = m.stats
	snapshot.Muted = m.muted.Load()
	m.snapshot.Store(&snapshot)

	for _, o := range m.observers {
		o.Publish(ctx, snapshot)
	}
}

// sleep waits for d or ctx cancellation and reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
