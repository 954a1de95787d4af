package rundir

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/uwflow/uwflow/internal/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// populated creates dir/run with a file and a nested directory.
func populated(t *testing.T) string {
	t.Helper()
	run := filepath.Join(t.TempDir(), "run")
	if err := os.MkdirAll(filepath.Join(run, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(run, "old.txt"), []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	return run
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error: %v", dir, err)
	}
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func assertFreshLayout(t *testing.T, run string) {
	t.Helper()
	got := entries(t, run)
	if len(got) != 2 || got[0] != InputDir || got[1] != RestartDir {
		t.Errorf("entries(%s) = %v, want [INPUT RESTART]", run, got)
	}
	for _, sub := range Subdirs(run) {
		if n := len(entries(t, sub)); n != 0 {
			t.Errorf("%s has %d entries, want 0", sub, n)
		}
	}
}

// ─── Policies ───────────────────────────────────────────────────────────────

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"delete", false},
		{"rename", false},
		{"quit", false},
		{"frobnicate", true},
		{"", true},
		{"Delete", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrBadPolicy) {
				t.Errorf("error = %v, want ErrBadPolicy", err)
			}
		})
	}
}

func TestProvision_Fresh(t *testing.T) {
	run := filepath.Join(t.TempDir(), "a", "run")
	if err := Provision(run, PolicyDelete, quiet); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	assertFreshLayout(t, run)
}

func TestProvision_Delete(t *testing.T) {
	run := populated(t)
	if err := Provision(run, PolicyDelete, quiet); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	assertFreshLayout(t, run)
}

func TestProvision_Rename(t *testing.T) {
	run := populated(t)
	now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	if err := Provision(run, PolicyRename, quiet); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	assertFreshLayout(t, run)

	moved := run + "_20240506_070809"
	data, err := os.ReadFile(filepath.Join(moved, "old.txt"))
	if err != nil {
		t.Fatalf("moved contents missing: %v", err)
	}
	if string(data) != "keep me" {
		t.Errorf("moved old.txt = %q", data)
	}

	// A second rename in the same second must not collide.
	if err := Provision(run, PolicyRename, quiet); err != nil {
		t.Fatalf("second Provision() error: %v", err)
	}
	if _, err := os.Stat(moved + "_1"); err != nil {
		t.Errorf("expected %s_1: %v", moved, err)
	}
	if _, err := os.Stat(filepath.Join(moved, "old.txt")); err != nil {
		t.Errorf("first move clobbered: %v", err)
	}
}

func TestProvision_InvalidPolicyTouchesNothing(t *testing.T) {
	run := filepath.Join(t.TempDir(), "run")
	err := Provision(run, Policy("frobnicate"), quiet)
	if !errors.Is(err, domain.ErrBadPolicy) {
		t.Fatalf("error = %v, want ErrBadPolicy", err)
	}
	if _, err := os.Stat(run); !os.IsNotExist(err) {
		t.Errorf("run directory was created: %v", err)
	}
}

func TestProvision_QuitLeavesDirectoryUntouched(t *testing.T) {
	run := populated(t)
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	if err := Provision(run, PolicyQuit, quiet); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	got := entries(t, run)
	if len(got) != 2 || got[0] != "nested" || got[1] != "old.txt" {
		t.Errorf("entries = %v, want [nested old.txt]", got)
	}
}

func TestProvision_QuitWithoutConflictCreates(t *testing.T) {
	run := filepath.Join(t.TempDir(), "run")
	if err := Provision(run, PolicyQuit, quiet); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	assertFreshLayout(t, run)
}

// TestProvision_QuitTerminatesProcess re-runs the test binary so the real
// os.Exit path can be observed.
func TestProvision_QuitTerminatesProcess(t *testing.T) {
	if path := os.Getenv("UWFLOW_RUNDIR_QUIT"); path != "" {
		_ = Provision(path, PolicyQuit, quiet)
		os.Exit(0)
	}

	run := populated(t)
	cmd := exec.Command(os.Args[0], "-test.run=^TestProvision_QuitTerminatesProcess$")
	cmd.Env = append(os.Environ(), "UWFLOW_RUNDIR_QUIT="+run)
	err := cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("subprocess error = %v, want exit error", err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
	data, err := os.ReadFile(filepath.Join(run, "old.txt"))
	if err != nil || string(data) != "keep me" {
		t.Errorf("old.txt = %q, %v", data, err)
	}
}

func TestCreate_FailsWhenSubdirBlocked(t *testing.T) {
	run := filepath.Join(t.TempDir(), "run")
	if err := os.MkdirAll(run, 0o755); err != nil {
		t.Fatal(err)
	}
	// A regular file where INPUT should be.
	if err := os.WriteFile(filepath.Join(run, InputDir), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Create(run, quiet); err == nil {
		t.Error("Create() expected error when INPUT is a file")
	}
}
