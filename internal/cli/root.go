// Package cli implements the uwflow command-line interface using Cobra.
// Every driver is a subcommand and every task in its catalog a subcommand of
// that, so "uwflow orog run" satisfies the orog run task.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uwflow/uwflow/internal/logging"
	"github.com/uwflow/uwflow/internal/metrics"
)

func init() {
	f := rootCmd.PersistentFlags()
	f.BoolVarP(&quiet, "quiet", "q", false, "Print no logging messages")
	f.BoolVarP(&verbose, "verbose", "v", false, "Print all logging messages")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
}

var (
	quiet       bool
	verbose     bool
	logFormat   string
	metricsFile string

	// logger is built from the global flags before any command runs.
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "uwflow",
	Short: "Prepare and run forecast model components",
	Long: `uwflow stages inputs, provisions run directories and launches forecast
model components, directly or through a batch system.

Each driver exposes a catalog of tasks. A task is satisfied lazily: work is
done only where its output does not exist yet.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
}

func setupLogger(cmd *cobra.Command, args []string) error {
	if logFormat != "text" && logFormat != "json" {
		return fmt.Errorf("invalid --log-format %q: want text or json", logFormat)
	}
	logger = logging.New(logging.Options{
		Format:  logFormat,
		Quiet:   quiet,
		Verbose: verbose,
	}, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return nil
}

// run executes the command tree with args and returns its error. Metrics
// are written afterwards, also when the command failed. SIGINT and SIGTERM
// cancel the command context, which stops a running model.
func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	if metricsFile != "" {
		if werr := metrics.WriteTextfile(metricsFile); werr != nil && err == nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}
	return err
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
