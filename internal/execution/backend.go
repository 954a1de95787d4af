package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/uwflow/uwflow/internal/batch"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/scheduler"
)

// Mode is how the executable is launched.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeBatch  Mode = "batch"
)

// outputTail is how much combined output a direct run keeps.
const outputTail = 64 * 1024

// ─── Paths ──────────────────────────────────────────────────────────────────

// ScriptPath is where the batch script for driver is written.
func ScriptPath(rundir, driver string) string {
	return filepath.Join(rundir, "runscript."+driver)
}

// DoneMarker is written after a direct run exits 0.
func DoneMarker(rundir, driver string) string {
	return ScriptPath(rundir, driver) + ".done"
}

// SubmitMarker records the job id after a batch submission.
func SubmitMarker(rundir, driver string) string {
	return ScriptPath(rundir, driver) + ".submit"
}

// ─── Result ─────────────────────────────────────────────────────────────────

// Result is the outcome of one launch. A failing executable is reported
// here, not as an error.
type Result struct {
	Mode      Mode
	Command   string
	Script    string
	ExitCode  int
	Output    string
	Job       *scheduler.Job
	SubmitErr error
	DryRun    bool
	Duration  time.Duration
}

// OK reports whether the launch succeeded (or was only previewed).
func (r *Result) OK() bool {
	if r.DryRun {
		return true
	}
	if r.SubmitErr != nil {
		return false
	}
	if r.Job != nil && r.Job.ExitCode != 0 {
		return false
	}
	return r.ExitCode == 0
}

// Err describes a failed launch, or returns nil.
func (r *Result) Err() error {
	switch {
	case r.OK():
		return nil
	case r.SubmitErr != nil:
		return fmt.Errorf("batch submission failed: %w", r.SubmitErr)
	case r.Job != nil && r.Job.ExitCode != 0:
		return fmt.Errorf("job %s exited with status %d", r.Job.ID, r.Job.ExitCode)
	default:
		return fmt.Errorf("%q exited with status %d", r.Command, r.ExitCode)
	}
}

// ─── Backend ────────────────────────────────────────────────────────────────

// Backend launches commands for one driver.
type Backend struct {
	logger    *slog.Logger
	scheduler scheduler.Client
	DryRun    bool
}

// NewBackend returns a backend submitting through client. A nil logger uses
// slog.Default.
func NewBackend(logger *slog.Logger, client scheduler.Client, dryRun bool) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger, scheduler: client, DryRun: dryRun}
}

// Direct runs cmd with /bin/sh -c in rundir and waits for it. On exit 0 the
// driver's done marker is written.
func (b *Backend) Direct(ctx context.Context, rundir, driver string, cmd Command) (*Result, error) {
	res := &Result{Mode: ModeDirect, Command: cmd.Shell(), DryRun: b.DryRun}
	if b.DryRun {
		b.logger.Info("Would run", "command", res.Command, "rundir", rundir)
		return res, nil
	}

	out := &limitedBuffer{max: outputTail}
	c := exec.CommandContext(ctx, "/bin/sh", "-c", res.Command)
	c.Dir = rundir
	c.Stdout = out
	c.Stderr = out
	if err := configureProcess(c); err != nil {
		return res, err
	}

	b.logger.Info("Running", "command", res.Command, "rundir", rundir)
	start := time.Now()
	err := c.Run()
	res.Duration = time.Since(start)
	res.Output = out.String()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("start %q: %w", res.Command, err)
		}
		res.ExitCode = exitErr.ExitCode()
		b.logger.Error("Run failed", "command", res.Command, "exit", res.ExitCode)
		return res, nil
	}

	if err := os.WriteFile(DoneMarker(rundir, driver), nil, 0o644); err != nil {
		return res, fmt.Errorf("write done marker: %w", err)
	}
	b.logger.Info("Run complete", "command", res.Command, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// Render builds the batch script for cmd: shebang, scheduler directives,
// export line, environment commands, then the run line.
func (b *Backend) Render(cmd Command, res domain.Resources) (*batch.Script, error) {
	s := batch.New()
	if b.scheduler != nil {
		if err := s.Append(b.scheduler.Directives(res)...); err != nil {
			return nil, err
		}
	}
	if line := batch.ExportLine(cmd.EnvPairs()); line != "" {
		if err := s.Append(line); err != nil {
			return nil, err
		}
	}
	if err := s.Append(cmd.EnvCmds...); err != nil {
		return nil, err
	}
	if err := s.Append(cmd.Line()); err != nil {
		return nil, err
	}
	return s, nil
}

// Batch renders the script, writes it under rundir and submits it. A failed
// submission is stored on the result.
func (b *Backend) Batch(ctx context.Context, rundir, driver string, cmd Command, res domain.Resources) (*Result, error) {
	script, err := b.Render(cmd, res)
	if err != nil {
		return nil, err
	}
	result := &Result{Mode: ModeBatch, Command: cmd.Shell(), Script: script.String(), DryRun: b.DryRun}
	if b.DryRun {
		b.logger.Info("Would submit batch script", "script", result.Script)
		return result, nil
	}
	if b.scheduler == nil {
		return result, fmt.Errorf("%w: no scheduler configured", domain.ErrUnknownScheduler)
	}

	path := ScriptPath(rundir, driver)
	if err := script.Write(path); err != nil {
		return result, err
	}
	b.logger.Info("Submitting", "script", path, "scheduler", b.scheduler.Name())

	start := time.Now()
	job, err := b.scheduler.Submit(ctx, path)
	result.Duration = time.Since(start)
	result.Job = &job
	result.Output = job.Output
	if err != nil {
		result.SubmitErr = err
		b.logger.Error("Submission failed", "script", path, "error", err)
		return result, nil
	}
	if job.ExitCode != 0 {
		b.logger.Error("Job failed", "job", job.ID, "exit", job.ExitCode)
		return result, nil
	}
	if err := os.WriteFile(SubmitMarker(rundir, driver), []byte(job.ID+"\n"), 0o644); err != nil {
		return result, fmt.Errorf("write submit marker: %w", err)
	}
	b.logger.Info("Submitted", "job", job.ID)
	return result, nil
}

// ─── Output Capture ─────────────────────────────────────────────────────────

// limitedBuffer keeps the last max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.Write(p)
	if b.buf.Len() > b.max {
		data := b.buf.Bytes()
		tail := append([]byte(nil), data[len(data)-b.max:]...)
		b.buf.Reset()
		b.buf.Write(tail)
	}
	return n, err
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
