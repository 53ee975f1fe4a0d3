package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	"github.com/oshokin/drowsiness-alarm/internal/service/server"
	"github.com/oshokin/drowsiness-alarm/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// settingsFile path where control settings are persisted.
	settingsFile string

	// rootCmd runs the detection daemon.
	rootCmd = &cobra.Command{
		Use:   "drowsiness-monitor [listen-address]",
		Short: "Watch the driver's eyes and raise an alarm when they stay closed.",
		Long: `Runs the drowsiness detection daemon.

Frames are read from the configured source, the landmark worker finds the face
and the eye aspect ratio decides whether the eyes are closed. A closed-eye run
of frame_threshold frames raises the alarm; it pulses every frame until the eyes
open again.

The daemon is controlled over gRPC (see drowsiness-ctl). Only the port of
control_addr is used for listening unless a listen address argument is given.
When ws_addr is set, per-frame snapshots are streamed to websocket clients.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			err := server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				SettingsFile:  settingsFile,
			})
			if err != nil {
				logger.ErrorKV(ctx, "Drowsiness monitor failed", "error", err)
			}

			return err
		},
	}
)

// Execute runs the drowsiness-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&settingsFile, "settings-file", "s", "", "path to persist control settings (overrides settings_file)")
}
