package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, text string) config.Section {
	t.Helper()
	cfg, err := config.Decode(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Decode() error: %v\n%s", err, text)
	}
	return cfg
}

func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
		t.Fatal(err)
	}
}

// orogFixture lays out inputs under a temp dir and returns the config text.
type orogFixture struct {
	dir    string
	rundir string
	grid   string
	exe    string
}

func newOrogFixture(t *testing.T) orogFixture {
	t.Helper()
	dir := t.TempDir()
	f := orogFixture{
		dir:    dir,
		rundir: filepath.Join(dir, "run"),
		grid:   filepath.Join(dir, "C96_grid.tile7.nc"),
		// Reads INPS on stdin and leaves the expected output behind.
		exe: writeExecutable(t, dir, "orog", "cat > out.oro.nc"),
	}
	touch(t, f.grid)
	return f
}

func (f orogFixture) config(extra string) string {
	return fmt.Sprintf(`
[platform]
account = "wrfruc"
scheduler = "local"

[orog]
rundir = %q
grid_file = %q
%s

[orog.execution]
executable = %q
`, f.rundir, f.grid, extra, f.exe)
}

func newTestOrog(t *testing.T, text string, opts Options) *Orog {
	t.Helper()
	opts.Config = decode(t, text)
	opts.Logger = testLogger()
	o, err := NewOrog(opts)
	if err != nil {
		t.Fatalf("NewOrog() error: %v", err)
	}
	return o
}

// ─── INPS Rendering ─────────────────────────────────────────────────────────

func TestOrog_INPS(t *testing.T) {
	f := newOrogFixture(t)
	tests := []struct {
		name  string
		extra string
		want  []string
	}{
		{
			name:  "without old_line1_items",
			extra: ``,
			want:  []string{f.grid, ".false.", "none"},
		},
		{
			name: "with old_line1_items",
			extra: `orog_file = "orog.nc"
mask = true
merge = "merge.nc"
[orog.old_line1_items]
blat = 9
efac = 8.5
jcap = 4
latb = 3
lonb = 2
mtnres = 1
nf1 = 6
nf2 = 7
nr = 5`,
			want: []string{"1 2 3 4 5 6 7 8.5 9", f.grid, "orog.nc", ".true.", "merge.nc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrog(t, f.config(tt.extra), Options{})
			got, err := o.inps()
			if err != nil {
				t.Fatalf("inps() error: %v", err)
			}
			if want := strings.Join(tt.want, "\n") + "\n"; got != want {
				t.Errorf("inps() =\n%q\nwant\n%q", got, want)
			}
		})
	}
}

func TestOrog_INPSMissingLine1Item(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config("[orog.old_line1_items]\nmtnres = 1"), Options{})
	if _, err := o.Task("input_config_file"); !errors.Is(err, domain.ErrConfigMissing) {
		t.Errorf("Task() error = %v, want ErrConfigMissing", err)
	}
}

// ─── Staging ────────────────────────────────────────────────────────────────

func TestOrog_StagesCopiesAndLinks(t *testing.T) {
	f := newOrogFixture(t)
	src := filepath.Join(f.dir, "src", "a.nc")
	target := filepath.Join(f.dir, "src", "b.nc")
	touch(t, src)
	touch(t, target)
	extra := fmt.Sprintf("[orog.files_to_copy]\n\"a.nc\" = %q\n[orog.files_to_link]\n\"INPUT/b.nc\" = %q", src, target)
	o := newTestOrog(t, f.config(extra), Options{})

	trace, err := o.Satisfy(context.Background(), "provisioned_rundir")
	if err != nil {
		t.Fatalf("Satisfy() error: %v", err)
	}
	if got := trace.Names(taskgraph.StateFailed); len(got) != 0 {
		t.Errorf("failed tasks: %v", got)
	}

	data, err := os.ReadFile(filepath.Join(f.rundir, "a.nc"))
	if err != nil || string(data) != "a.nc" {
		t.Errorf("copied file = %q, %v", data, err)
	}
	dest, err := os.Readlink(filepath.Join(f.rundir, "INPUT", "b.nc"))
	if err != nil || dest != target {
		t.Errorf("link = %q, %v; want %q", dest, err, target)
	}
	for _, p := range []string{"INPS", "runscript.orog", "INPUT", "RESTART"} {
		if _, err := os.Stat(filepath.Join(f.rundir, p)); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}
	if _, err := os.Stat(execution.DoneMarker(f.rundir, "orog")); !os.IsNotExist(err) {
		t.Error("provisioning must not launch the executable")
	}

	// A second pass finds everything in place.
	again, err := o.Satisfy(context.Background(), "provisioned_rundir")
	if err != nil {
		t.Fatalf("second Satisfy() error: %v", err)
	}
	for _, n := range again.Nodes() {
		if n.State != taskgraph.StateReady {
			t.Errorf("second pass: %s is %s, want ready", n.Name, n.State)
		}
	}
}

func TestOrog_MissingCopySource(t *testing.T) {
	f := newOrogFixture(t)
	extra := fmt.Sprintf("[orog.files_to_copy]\n\"a.nc\" = %q", filepath.Join(f.dir, "nope.nc"))
	o := newTestOrog(t, f.config(extra), Options{})

	_, err := o.Satisfy(context.Background(), "files_copied")
	var ext *taskgraph.ExternalError
	if !errors.As(err, &ext) {
		t.Fatalf("error = %v, want *ExternalError", err)
	}
}

func TestOrog_GridFileNone(t *testing.T) {
	f := newOrogFixture(t)
	text := strings.Replace(f.config(""), fmt.Sprintf("grid_file = %q", f.grid), `grid_file = "none"`, 1)
	o := newTestOrog(t, text, Options{})

	trace, err := o.Satisfy(context.Background(), "grid_file")
	if err != nil {
		t.Fatalf("Satisfy() error: %v", err)
	}
	if n, _ := trace.Node("orog Input grid file"); n.State != taskgraph.StateReady {
		t.Errorf("grid_file state = %s, want ready", n.State)
	}
	reqs, _ := o.Requirements()
	for _, r := range reqs {
		if r.Name == "grid_file" {
			t.Error("grid_file \"none\" should not be a requirement")
		}
	}
}

func TestOrog_MissingGridFile(t *testing.T) {
	f := newOrogFixture(t)
	os.Remove(f.grid)
	o := newTestOrog(t, f.config(""), Options{})

	_, err := o.Satisfy(context.Background(), "input_config_file")
	var ext *taskgraph.ExternalError
	if !errors.As(err, &ext) || ext.Ref != f.grid {
		t.Fatalf("error = %v, want *ExternalError for %s", err, f.grid)
	}
	if _, err := os.Stat(filepath.Join(f.rundir, "INPS")); !os.IsNotExist(err) {
		t.Error("INPS written despite missing grid file")
	}
}

// ─── Run ────────────────────────────────────────────────────────────────────

func TestOrog_RunDirect(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config(""), Options{})

	if _, err := o.Satisfy(context.Background(), "run"); err != nil {
		t.Fatalf("Satisfy(run) error: %v", err)
	}
	out, err := o.Output()
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	data, err := os.ReadFile(out["path"])
	if err != nil || !strings.Contains(string(data), f.grid) {
		t.Errorf("output = %q, %v", data, err)
	}
	if r := o.LastRun(); r == nil || r.Mode != execution.ModeDirect || r.ExitCode != 0 {
		t.Errorf("LastRun() = %+v", r)
	}

	// The done marker makes the run task ready; nothing is launched again.
	o2 := newTestOrog(t, f.config(""), Options{})
	if _, err := o2.Satisfy(context.Background(), "run"); err != nil {
		t.Fatalf("second Satisfy(run) error: %v", err)
	}
	if o2.LastRun() != nil {
		t.Error("run launched again although its marker exists")
	}
}

func TestOrog_RunFailureIsActionFailed(t *testing.T) {
	f := newOrogFixture(t)
	f.exe = writeExecutable(t, f.dir, "broken", "exit 2")
	o := newTestOrog(t, f.config(""), Options{})

	_, err := o.Satisfy(context.Background(), "run")
	var af *taskgraph.ActionFailedError
	if !errors.As(err, &af) {
		t.Fatalf("error = %v, want *ActionFailedError", err)
	}
	if r := o.LastRun(); r == nil || r.ExitCode != 2 {
		t.Errorf("LastRun() = %+v, want exit 2", r)
	}
}

func TestOrog_RunBatchLocal(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config(""), Options{Batch: true})

	if _, err := o.Satisfy(context.Background(), "run"); err != nil {
		t.Fatalf("Satisfy(run) error: %v", err)
	}
	r := o.LastRun()
	if r == nil || r.Mode != execution.ModeBatch || r.Job == nil {
		t.Fatalf("LastRun() = %+v", r)
	}
	if _, err := os.Stat(execution.SubmitMarker(f.rundir, "orog")); err != nil {
		t.Errorf("submit marker missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.rundir, "out.oro.nc")); err != nil {
		t.Errorf("local job did not run: %v", err)
	}
}

func TestOrog_DryRun(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config(`exist_act = "delete"`), Options{DryRun: true})

	trace, err := o.Satisfy(context.Background(), "run")
	if err != nil {
		t.Fatalf("Satisfy() error: %v", err)
	}
	if n, _ := trace.Node(trace.Root); n.State != taskgraph.StatePending {
		t.Errorf("root state = %s, want pending", n.State)
	}
	if _, err := os.Stat(f.rundir); !os.IsNotExist(err) {
		t.Error("dry run touched the run directory")
	}
	if r := o.LastRun(); r == nil || !r.DryRun {
		t.Errorf("LastRun() = %+v, want dry-run preview", r)
	}
}

func TestOrog_ExistActDelete(t *testing.T) {
	f := newOrogFixture(t)
	stale := filepath.Join(f.rundir, "stale")
	touch(t, stale)
	o := newTestOrog(t, f.config(`exist_act = "delete"`), Options{})

	if _, err := o.Satisfy(context.Background(), "rundir"); err != nil {
		t.Fatalf("Satisfy() error: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived exist_act = delete")
	}
}

func TestOrog_BadExistAct(t *testing.T) {
	f := newOrogFixture(t)
	_, err := NewOrog(Options{Config: decode(t, f.config(`exist_act = "keep"`)), Logger: testLogger()})
	if !errors.Is(err, domain.ErrBadPolicy) {
		t.Errorf("NewOrog() error = %v, want ErrBadPolicy", err)
	}
}

// ─── Contract ───────────────────────────────────────────────────────────────

func TestOrog_ResourcesAndJobCard(t *testing.T) {
	f := newOrogFixture(t)
	extra := "[orog.execution.batchargs]\nwalltime = \"00:10:00\""
	text := strings.Replace(f.config(""), "\n[orog.execution]\n", "\n[orog.execution]\nmpicmd = \"srun\"\n", 1) + extra
	o := newTestOrog(t, text, Options{})

	res, err := o.Resources()
	if err != nil {
		t.Fatalf("Resources() error: %v", err)
	}
	if res.Account != "wrfruc" || res.Scheduler != "local" || res.Fields["walltime"] != "00:10:00" {
		t.Errorf("Resources() = %+v", res)
	}
	card, err := o.JobCard()
	if err != nil {
		t.Fatalf("JobCard() error: %v", err)
	}
	lines := card.Lines()
	if got, want := lines[len(lines)-1], "srun "+f.exe+" < INPS"; got != want {
		t.Errorf("run line = %q, want %q", got, want)
	}
	if card.Frozen() {
		t.Error("job card should not be frozen")
	}
}

func TestOrog_UnknownTask(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config(""), Options{})
	if _, err := o.Satisfy(context.Background(), "launch"); !errors.Is(err, domain.ErrUnknownTask) {
		t.Errorf("Satisfy() error = %v, want ErrUnknownTask", err)
	}
}

func TestOrog_Validate(t *testing.T) {
	f := newOrogFixture(t)
	o := newTestOrog(t, f.config(""), Options{})
	trace, err := o.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if _, ok := trace.Node("Executable " + f.exe); !ok {
		t.Error("validate should check the executable")
	}
	if _, err := os.Stat(filepath.Join(f.rundir, "INPS")); err != nil {
		t.Errorf("validate should provision the run directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.rundir, "out.oro.nc")); !os.IsNotExist(err) {
		t.Error("validate must not run the executable")
	}
}
