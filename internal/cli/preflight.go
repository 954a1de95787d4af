package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	preflightCmd.Flags().StringVarP(&preflightConfig, "config-file", "c", "", "Path to the TOML config file (default: read stdin)")
	preflightCmd.Flags().StringVar(&preflightCycle, "cycle", "", "The cycle in ISO 8601 format, for cycle-dependent drivers")
	rootCmd.AddCommand(preflightCmd)
}

var (
	preflightConfig string
	preflightCycle  string
)

var preflightCmd = &cobra.Command{
	Use:   "preflight DRIVER",
	Short: "Show a driver's requirements, resources, outputs and job card",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreflight,
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cycle, err := parseCycle(preflightCycle)
	if err != nil {
		return err
	}
	report, err := newService(nil).Preflight(args[0], preflightConfig, cmd.InOrStdin(), cycle)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Driver:  %s\nRundir:  %s\n\n", report.Driver, report.Rundir)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUIREMENT\tKIND\tPATH\tSTATUS")
	for _, r := range report.Requirements {
		status := "present"
		if !r.Present {
			status = "MISSING"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Kind, r.Path, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nResources:\n%s\nOutputs:\n", report.Resources)
	names := make([]string, 0, len(report.Outputs))
	for k := range report.Outputs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(out, "  %s: %s\n", k, report.Outputs[k])
	}
	fmt.Fprintf(out, "\nJob card:\n%s", report.JobCard)

	if missing := report.Missing(); len(missing) > 0 {
		return fmt.Errorf("%d requirement(s) missing", len(missing))
	}
	return nil
}
