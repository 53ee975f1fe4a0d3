package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/drowsiness-alarm/internal/api/grpc/monitor"
	"github.com/oshokin/drowsiness-alarm/internal/api/ws"
	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	pb "github.com/oshokin/drowsiness-alarm/internal/pb/v1"
	"github.com/oshokin/drowsiness-alarm/internal/provider/worker"
	repository "github.com/oshokin/drowsiness-alarm/internal/repository/settings"
	"github.com/oshokin/drowsiness-alarm/internal/service/monitor"
	"github.com/oshokin/drowsiness-alarm/internal/sink"
	"github.com/oshokin/drowsiness-alarm/internal/sink/audio"
	"github.com/oshokin/drowsiness-alarm/internal/sink/mqtt"
	"github.com/oshokin/drowsiness-alarm/internal/source/imagedir"
)

// Options controls the drowsiness-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// SettingsFile specifies the path to persist control settings.
	SettingsFile string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the detection daemon and blocks until ctx is canceled or a server fails.
// It serves the gRPC control API and, when configured, the websocket feed.
//
//nolint:funlen,cyclop // Linear wiring of every component.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "drowsiness-monitor")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	settingsFile := cfg.SettingsFile
	if opts.SettingsFile != "" {
		settingsFile = opts.SettingsFile
	}

	listenAddress, err := resolveListenAddress(cfg.ControlAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	source, err := imagedir.New(cfg.Source)
	if err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}

	provider, err := worker.New(cfg.Provider)
	if err != nil {
		return fmt.Errorf("create landmark worker: %w", err)
	}

	if err = provider.Start(ctx); err != nil {
		return fmt.Errorf("start landmark worker: %w", err)
	}

	defer func() {
		if closeErr := provider.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close landmark worker", "error", closeErr)
		}
	}()

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}

	defer closeSinks()

	var (
		mon       *monitor.Monitor
		observers []monitor.Observer
		feed      *ws.Server
	)

	if cfg.ObserverAddress != "" {
		feed = ws.NewServer(func() monitor.Snapshot { return mon.Snapshot() }, ws.HubConfig{})
		observers = append(observers, feed)
	}

	mon = monitor.New(source, provider, sinks,
		monitor.WithThresholds(thresholds(cfg.Detection)),
		monitor.WithObservers(observers...),
		monitor.WithMuted(cfg.Alarm.Muted),
	)

	svc, err := newService(ctx, repository.NewFileRepository(settingsFile), mon, control.Settings{
		Monitoring: true,
		Muted:      cfg.Alarm.Muted,
	})
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	if err = svc.restore(ctx); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		stopMonitor(ctx, mon, cfg)

		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	pb.RegisterMonitorServiceServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Drowsiness monitor listening",
		"listen_address", listenAddress,
		"settings_file", settingsFile,
		"images", source.Len(),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	var httpServer *http.Server

	if feed != nil {
		httpServer = &http.Server{
			Addr:              cfg.ObserverAddress,
			Handler:           feed.Handler(),
			ReadHeaderTimeout: cfg.Timeout,
		}

		group.Go(func() error {
			feed.Run(groupCtx)

			return nil
		})

		group.Go(func() error {
			logger.InfoKV(ctx, "Websocket feed listening", "address", cfg.ObserverAddress, "path", ws.Path)

			if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return fmt.Errorf("serve websocket feed: %w", serveErr)
			}

			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down")

		grpcServer.GracefulStop()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
			defer cancel()

			if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.WarnKV(ctx, "Websocket feed shutdown failed", "error", shutdownErr)
			}
		}

		stopMonitor(ctx, mon, cfg)

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Drowsiness monitor stopped")

	return nil
}

// buildSinks assembles the configured alarm sinks. The log sink is always present.
func buildSinks(ctx context.Context, cfg *config.Config) (sink.Multi, func(), error) {
	sinks := sink.Multi{sink.Log{}}
	closers := make([]func(), 0, 1)

	if cfg.Alarm.Player != "" || cfg.Alarm.SoundFile != "" {
		player, err := audio.New(cfg.Alarm)
		if err != nil {
			return nil, nil, fmt.Errorf("create audio sink: %w", err)
		}

		sinks = append(sinks, player)
	}

	if cfg.MQTT.Broker != "" {
		broker, err := mqtt.Connect(ctx, cfg.MQTT, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mqtt sink: %w", err)
		}

		sinks = append(sinks, broker)
		closers = append(closers, broker.Close)
	}

	return sinks, func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}, nil
}

// thresholds converts the detection config into state machine thresholds.
func thresholds(d config.Detection) drowsiness.Thresholds {
	return drowsiness.Thresholds{
		EAR:            d.EARThreshold,
		Frames:         d.FrameThreshold,
		ReleaseFrames:  d.ReleaseFrames,
		HoldOnFaceLoss: d.HoldOnFaceLoss,
	}
}

// stopMonitor ends the detection loop with a bounded context detached from ctx.
func stopMonitor(ctx context.Context, mon *monitor.Monitor, cfg *config.Config) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
	defer cancel()

	if err := mon.Stop(stopCtx); err != nil {
		logger.WarnKV(ctx, "Monitor did not stop cleanly", "error", err)
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
