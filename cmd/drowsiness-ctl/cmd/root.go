package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/service/client"
	"github.com/oshokin/drowsiness-alarm/internal/service/watcher"
	"github.com/oshokin/drowsiness-alarm/internal/version"
)

var (
	// configPath stores the configuration file path.
	configPath string
	// serverAddress overrides control_addr from the configuration.
	serverAddress string
	// once disables retries of switch commands.
	once bool
	// pollInterval is the watch polling interval.
	pollInterval time.Duration

	// rootCmd groups the control subcommands.
	rootCmd = &cobra.Command{
		Use:   "drowsiness-ctl",
		Short: "Control a running drowsiness monitor.",
		Long: `Sends operator switches to the drowsiness monitor over gRPC and reports its status.

Switch commands retry every second until the daemon confirms the change,
unless --once is given. Every change is recorded with user@host of the caller.`,
		SilenceUsage: true,
	}
)

// switchCommand builds a subcommand pushing one switch value.
func switchCommand(use, short string, s client.Switch, value bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return client.Run(ctx, &client.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Switch:        s,
				Value:         value,
				Once:          once,
			})
		},
	}
}

// Execute runs the drowsiness-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "a", "", "daemon control address (overrides control_addr)")

	switches := []*cobra.Command{
		switchCommand("start", "Start the detection loop.", client.Monitoring, true),
		switchCommand("stop", "Stop the detection loop and silence any alarm.", client.Monitoring, false),
		switchCommand("mute", "Suppress alarm sounds and events.", client.Mute, true),
		switchCommand("unmute", "Restore alarm sounds and events.", client.Mute, false),
	}

	for _, cmd := range switches {
		cmd.Flags().BoolVar(&once, "once", false, "fail instead of retrying when the daemon is unreachable")
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the daemon status once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watcher.Run(cmd.Context(), &watcher.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Once:          true,
				Output:        cmd.OutOrStdout(),
			})
		},
	})

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the daemon status and log every change.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return watcher.Run(ctx, &watcher.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				PollInterval:  pollInterval,
			})
		},
	}

	watchCmd.Flags().DurationVarP(&pollInterval, "interval", "i", watcher.DefaultPollInterval, "polling interval")
	rootCmd.AddCommand(watchCmd)
}
