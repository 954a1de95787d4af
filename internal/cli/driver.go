package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uwflow/uwflow/internal/api"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/drivers"
	"github.com/uwflow/uwflow/internal/history"
)

func init() {
	for _, k := range drivers.Kinds() {
		rootCmd.AddCommand(newDriverCmd(k))
	}
}

// taskFlags are shared by every task subcommand of one driver.
type taskFlags struct {
	configFile string
	cycle      string
	batch      bool
	dryRun     bool
	graphFile  string
}

func newDriverCmd(k drivers.Kind) *cobra.Command {
	flags := &taskFlags{}
	cmd := &cobra.Command{
		Use:   k.Name + " TASK",
		Short: k.Help,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %q for driver %s", domain.ErrUnknownTask, args[0], k.Name)
			}
			return cmd.Help()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&flags.configFile, "config-file", "c", "", "Path to the TOML config file (default: read stdin)")
	f.BoolVar(&flags.batch, "batch", false, "Submit the run to the batch system")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Only log what would be done")
	f.StringVar(&flags.graphFile, "graph-file", "", "Write the task graph as Graphviz DOT to this path")
	if k.TimeInvariant {
		f.StringVar(&flags.cycle, "cycle", "", "Ignored: this driver is time-invariant")
		f.MarkHidden("cycle")
	} else {
		f.StringVar(&flags.cycle, "cycle", "", "The cycle in ISO 8601 format (e.g. 2024-05-06T12)")
		cmd.MarkPersistentFlagRequired("cycle")
	}

	for _, e := range k.Catalog {
		task := e.Name
		cmd.AddCommand(&cobra.Command{
			Use:   task,
			Short: e.Help,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTask(cmd, k.Name, task, flags)
			},
		})
	}
	return cmd
}

func runTask(cmd *cobra.Command, driver, task string, flags *taskFlags) error {
	cycle, err := parseCycle(flags.cycle)
	if err != nil {
		return err
	}

	var db *history.DB
	if !flags.dryRun {
		if db, err = openHistory(); err != nil {
			logger.Warn("Run history unavailable", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	ok, err := newService(db).Execute(cmd.Context(), api.Request{
		Driver:     driver,
		Task:       task,
		Cycle:      cycle,
		ConfigPath: flags.configFile,
		Stdin:      cmd.InOrStdin(),
		Batch:      flags.batch,
		DryRun:     flags.dryRun,
		GraphPath:  flags.graphFile,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s failed", driver, task)
	}
	return nil
}
