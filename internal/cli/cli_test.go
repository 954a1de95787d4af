package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/history"
)

// resetFlags restores every flag in the tree to its default so package-level
// command state does not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with args and stdin and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetIn(strings.NewReader(stdin))
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	return stdout.String(), err
}

// setup points the uwflow home at a temp dir and writes an orog config with
// its grid file and a fake executable. It returns the config path and the
// run directory.
func setup(t *testing.T, exe string) (string, string) {
	t.Helper()
	t.Setenv("UWFLOW_HOME", filepath.Join(t.TempDir(), "home"))
	dir := t.TempDir()
	grid := filepath.Join(dir, "grid.nc")
	if err := os.WriteFile(grid, []byte("grid"), 0o644); err != nil {
		t.Fatal(err)
	}
	exePath := filepath.Join(dir, "orog")
	if err := os.WriteFile(exePath, []byte("#!/bin/sh\n"+exe+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	rundir := filepath.Join(dir, "run")
	cfg := fmt.Sprintf(`
[platform]
account = "acct"

[orog]
rundir = %q
grid_file = %q

[orog.execution]
executable = %q
`, rundir, grid, exePath)
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, rundir
}

func TestParseCycle(t *testing.T) {
	want := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: time.Time{}},
		{in: "2024-05-06T12", want: want},
		{in: "2024-05-06T12:00", want: want},
		{in: "2024-05-06T12:00:00", want: want},
		{in: "2024-05-06T14:00:00+02:00", want: want},
		{in: "2024-05-06", want: time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{in: "20240506", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCycle(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCycle(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseCycle(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoot_GlobalFlags(t *testing.T) {
	t.Setenv("UWFLOW_HOME", t.TempDir())
	if _, err := execute(t, "", "-q", "-v", "history"); err == nil {
		t.Error("--quiet with --verbose should fail")
	}
	if _, err := execute(t, "", "--log-format", "xml", "history"); err == nil || !strings.Contains(err.Error(), "log-format") {
		t.Errorf("bad --log-format error = %v", err)
	}
}

func TestDriverTask_RunAndHistory(t *testing.T) {
	cfg, rundir := setup(t, "cat > out.oro.nc")

	if _, err := execute(t, "", "orog", "run", "-c", cfg); err != nil {
		t.Fatalf("orog run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rundir, "out.oro.nc")); err != nil {
		t.Errorf("model output missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rundir, "runscript.orog.done")); err != nil {
		t.Errorf("done marker missing: %v", err)
	}

	out, err := execute(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "DRIVER") || !strings.Contains(out, "orog") || !strings.Contains(out, "ok") {
		t.Errorf("history output:\n%s", out)
	}

	db, err := history.Open(os.Getenv("UWFLOW_HOME"))
	if err != nil {
		t.Fatal(err)
	}
	runs, err := db.List(1)
	db.Close()
	if err != nil || len(runs) != 1 {
		t.Fatalf("List() = %v, %v", runs, err)
	}

	out, err = execute(t, "", "history", "show", runs[0].ID)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(out, "Driver:    orog") || !strings.Contains(out, "Mode:      direct") {
		t.Errorf("history show output:\n%s", out)
	}
	if _, err := execute(t, "", "history", "show", "nope"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("history show nope error = %v", err)
	}
}

func TestDriverTask_ConfigFromStdin(t *testing.T) {
	cfg, rundir := setup(t, "true")
	data, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, string(data), "orog", "rundir"); err != nil {
		t.Fatalf("orog rundir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rundir, "RESTART")); err != nil {
		t.Errorf("RESTART missing: %v", err)
	}
}

func TestDriverTask_Failure(t *testing.T) {
	cfg, rundir := setup(t, "exit 3")
	if _, err := execute(t, "", "orog", "run", "-c", cfg); err == nil {
		t.Fatal("failing model should fail the command")
	}
	if _, err := os.Stat(filepath.Join(rundir, "runscript.orog.done")); !os.IsNotExist(err) {
		t.Error("done marker written for a failed run")
	}
}

func TestDriverTask_DryRun(t *testing.T) {
	cfg, rundir := setup(t, "true")
	graph := filepath.Join(t.TempDir(), "graph.dot")
	if _, err := execute(t, "", "orog", "run", "-c", cfg, "--dry-run", "--graph-file", graph); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := os.Stat(rundir); !os.IsNotExist(err) {
		t.Error("dry run created the run directory")
	}
	dot, err := os.ReadFile(graph)
	if err != nil || !strings.HasPrefix(string(dot), "digraph") {
		t.Errorf("graph = %q, %v", dot, err)
	}
}

func TestDriverTask_UsageErrors(t *testing.T) {
	cfg, _ := setup(t, "true")

	if _, err := execute(t, "", "orog", "launch", "-c", cfg); !errors.Is(err, domain.ErrUnknownTask) {
		t.Errorf("unknown task error = %v", err)
	}
	if _, err := execute(t, "", "fv3", "run", "-c", cfg); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("missing --cycle error = %v", err)
	}
	if _, err := execute(t, "", "fv3", "run", "-c", cfg, "--cycle", "soon"); err == nil || !strings.Contains(err.Error(), "invalid cycle") {
		t.Errorf("bad --cycle error = %v", err)
	}
}

func TestPreflight(t *testing.T) {
	cfg, rundir := setup(t, "true")

	out, err := execute(t, "", "preflight", "orog", "-c", cfg)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	for _, want := range []string{"Driver:  orog", "REQUIREMENT", "present", "account: acct", "Job card:", "< INPS"} {
		if !strings.Contains(out, want) {
			t.Errorf("preflight output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(rundir); !os.IsNotExist(err) {
		t.Error("preflight created the run directory")
	}

	if err := os.Remove(strings.TrimSuffix(cfg, "config.toml") + "grid.nc"); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "", "preflight", "orog", "-c", cfg)
	if err == nil || !strings.Contains(out, "MISSING") {
		t.Errorf("preflight with missing grid = %v\n%s", err, out)
	}
}

func TestMetricsFile(t *testing.T) {
	cfg, _ := setup(t, "true")
	path := filepath.Join(t.TempDir(), "uwflow.prom")
	if _, err := execute(t, "", "--metrics-file", path, "orog", "rundir", "-c", cfg); err != nil {
		t.Fatalf("orog rundir: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), `uwflow_invocations_total{driver="orog",outcome="ok",task="rundir"}`) {
		t.Errorf("metrics file:\n%s", data)
	}
}

func TestHistory_Empty(t *testing.T) {
	t.Setenv("UWFLOW_HOME", t.TempDir())
	out, err := execute(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("history output = %q", out)
	}
}
