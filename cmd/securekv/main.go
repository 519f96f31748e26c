package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systmms/securekv/cmd/securekv/commands"
	"github.com/systmms/securekv/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, commands.ErrSilent) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := &commands.Runtime{}
	rootCmd := NewRootCommand(rt)
	err := rootCmd.ExecuteContext(ctx)
	if flushErr := rt.FlushMetrics(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

// NewRootCommand wires the global flags and subcommands.
func NewRootCommand(rt *commands.Runtime) *cobra.Command {
	var (
		configFile  string
		metricsFile string
		noColor     bool
		debug       bool
	)

	rootCmd := &cobra.Command{
		Use:   "securekv",
		Short: "Store secrets in the OS or cloud vault, with an encrypted local fallback",
		Long: `securekv keeps small secrets (tokens, credentials, settings) under string
keys. Values go to the configured vault when it is reachable and to an
encrypted fallback store otherwise.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rt.ConfigPath = configFile
			rt.MetricsFile = metricsFile
			rt.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default $SECUREKV_CONFIG or securekv.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-textfile", "", "Write store metrics to this file on exit (Prometheus text format)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewPutCommand(rt),
		commands.NewGetCommand(rt),
		commands.NewDeleteCommand(rt),
		commands.NewExistsCommand(rt),
		commands.NewDoctorCommand(rt),
		commands.NewKeygenCommand(rt),
	)

	return rootCmd
}
