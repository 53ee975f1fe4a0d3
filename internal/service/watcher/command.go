package watcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	"github.com/oshokin/drowsiness-alarm/internal/service/client"
	"github.com/oshokin/drowsiness-alarm/internal/service/common"
)

// Options controls the watcher polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// PollInterval defines the interval between status checks.
	PollInterval time.Duration
	// Once prints the current status to Output and exits.
	Once bool
	// Output receives the status line in Once mode, os.Stdout when nil.
	Output io.Writer
}

// DefaultPollInterval defines the default polling interval for status checks.
const DefaultPollInterval = time.Second

// statusGetter is the part of *common.Client the watcher needs.
type statusGetter interface {
	Status(ctx context.Context) (*control.Status, error)
}

// Run prints the daemon status once, or polls it and logs every change
// until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "drowsiness-watch")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	serverAddress := cfg.ControlAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	c, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = c.Close()
	}()

	if opts.Once {
		status, statusErr := c.Status(ctx)
		if statusErr != nil {
			return statusErr
		}

		out := opts.Output
		if out == nil {
			out = os.Stdout
		}

		_, err = fmt.Fprintln(out, client.FormatStatus(status))

		return err
	}

	logger.InfoKV(ctx, "Watching daemon status", "server_address", serverAddress, "interval", opts.PollInterval.String())

	watch(ctx, c, opts.PollInterval)

	return nil
}

// watch polls status every interval and logs it whenever it changes.
func watch(ctx context.Context, getter statusGetter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last      change
		reachable = true
	)

	for {
		status, err := getter.Status(ctx)

		switch {
		case err != nil && reachable:
			reachable = false

			logger.ErrorKV(ctx, "Status check failed", "error", err)
		case err == nil:
			if !reachable {
				logger.Info(ctx, "Daemon reachable again")
			}

			reachable = true

			if current := changeOf(status); current != last {
				last = current

				logger.Infof(ctx, "Status: %s", client.FormatStatus(status))
			}
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return
		case <-ticker.C:
		}
	}
}

// change holds the status fields whose change is worth a log line. EAR and
// tick counters change every frame and are left out.
type change struct {
	monitoring bool
	muted      bool
	running    bool
	state      string
	face       bool
	session    string
	actor      string
}

func changeOf(status *control.Status) change {
	c := change{
		running: status.Running,
		state:   status.State,
		face:    status.FacePresent,
		session: status.SessionID,
	}

	if status.Settings != nil {
		c.monitoring = status.Settings.Monitoring
		c.muted = status.Settings.Muted
		c.actor = status.Settings.LastActor.String()
	}

	return c
}
