package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	"github.com/oshokin/drowsiness-alarm/internal/service/common"
)

// Switch names the operator switch a command changes.
type Switch int

const (
	// Monitoring starts or stops the detection loop.
	Monitoring Switch = iota
	// Mute silences or restores alarm emission.
	Mute
)

// String implements fmt.Stringer.
func (s Switch) String() string {
	if s == Mute {
		return "mute"
	}

	return "monitoring"
}

// Options configures a switch push.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides the control address from config when specified.
	ServerAddress string

	// Switch selects what to change.
	Switch Switch

	// Value is the desired switch value.
	Value bool

	// Once disables retrying: the first failure is returned.
	Once bool
}

// defaultPushInterval defines retry delay when pushing a switch to the daemon.
const defaultPushInterval = 1 * time.Second

// errUnknownSwitch is returned for a Switch outside the declared constants.
var errUnknownSwitch = errors.New("unknown switch")

// switcher is the part of *common.Client a push needs.
type switcher interface {
	SetMonitoring(ctx context.Context, actor *control.Actor, enabled bool) (*control.Status, error)
	SetMuted(ctx context.Context, actor *control.Actor, muted bool) (*control.Status, error)
}

// Run pushes the desired switch value, retrying until the daemon confirms it
// or ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "drowsiness-ctl")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	serverAddress := cfg.ControlAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// Identify current user and hostname for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Pushing switch",
		"server_address", serverAddress,
		"switch", opts.Switch.String(),
		"value", opts.Value,
	)

	return push(ctx, client, actor, opts, defaultPushInterval)
}

// push applies the switch, retrying every interval on failure.
func push(ctx context.Context, client switcher, actor *control.Actor, opts *Options, interval time.Duration) error {
	// attempt tries once to change the switch, returns (completed, error).
	attempt := func() (bool, error) {
		status, err := apply(ctx, client, actor, opts.Switch, opts.Value)

		switch {
		case errors.Is(err, errUnknownSwitch):
			return false, err
		case err != nil && opts.Once:
			return false, err
		case err != nil:
			// Transient failures are retried.
			logger.ErrorKV(ctx, "Switch failed", "switch", opts.Switch.String(), "error", err)

			return false, nil
		}

		if confirmed(status, opts.Switch, opts.Value) {
			logger.Infof(ctx, "Daemon updated: %s", FormatStatus(status))

			return true, nil
		}

		return false, nil
	}

	if done, err := attempt(); err != nil || done {
		return err
	}

	if opts.Once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := attempt()
			if err != nil {
				return err
			}

			if done {
				return nil
			}
		}
	}
}

// apply performs one switch call.
func apply(ctx context.Context, client switcher, actor *control.Actor, s Switch, value bool) (*control.Status, error) {
	switch s {
	case Monitoring:
		return client.SetMonitoring(ctx, actor, value)
	case Mute:
		return client.SetMuted(ctx, actor, value)
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownSwitch, s)
	}
}

// confirmed reports whether status carries the desired switch value.
func confirmed(status *control.Status, s Switch, value bool) bool {
	if status == nil || status.Settings == nil {
		return false
	}

	if s == Mute {
		return status.Settings.Muted == value
	}

	return status.Settings.Monitoring == value
}

// FormatStatus converts a status to a readable log message.
func FormatStatus(status *control.Status) string {
	if status == nil {
		return "<nil status>"
	}

	timestamp, actor := "<unknown>", "<unknown>"
	monitoring, muted := false, false

	if settings := status.Settings; settings != nil {
		if !settings.Timestamp.IsZero() {
			timestamp = settings.Timestamp.Format(time.RFC3339)
		}

		if settings.LastActor != nil {
			actor = settings.LastActor.String()
		}

		monitoring, muted = settings.Monitoring, settings.Muted
	}

	running := "stopped"
	if status.Running {
		running = "running"
	}

	face := "no face"
	if status.FacePresent {
		face = fmt.Sprintf("ear=%.3f", status.EAR)
	}

	return fmt.Sprintf("monitoring=%t muted=%t, loop %s, state %s (%s, closed=%d), changed by %s (%s)",
		monitoring, muted, running, status.State, face, status.ClosedFrames, actor, timestamp)
}
