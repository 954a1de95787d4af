package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/uwflow/uwflow/internal/domain"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"ls"},
	Short:   "List recorded task runs, newest first",
	Args:    cobra.NoArgs,
	RunE:    runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.List(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded. Run 'uwflow <driver> <task>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDRIVER\tTASK\tCYCLE\tMODE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Driver,
			r.Task,
			cycleString(r.Cycle),
			r.Mode,
			status(r),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Duration.Round(time.Millisecond),
		)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.Get(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", r.ID)
	fmt.Fprintf(out, "Driver:    %s\n", r.Driver)
	fmt.Fprintf(out, "Task:      %s\n", r.Task)
	fmt.Fprintf(out, "Cycle:     %s\n", cycleString(r.Cycle))
	fmt.Fprintf(out, "Rundir:    %s\n", r.Rundir)
	fmt.Fprintf(out, "Mode:      %s\n", r.Mode)
	fmt.Fprintf(out, "Status:    %s\n", status(*r))
	if r.JobID != "" {
		fmt.Fprintf(out, "Job:       %s\n", r.JobID)
	}
	fmt.Fprintf(out, "Exit code: %d\n", r.ExitCode)
	fmt.Fprintf(out, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Duration:  %s\n", r.Duration)
	if r.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", r.Error)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cycleString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02T15")
}

func status(r domain.RunRecord) string {
	if r.OK {
		return "ok"
	}
	return "failed"
}
