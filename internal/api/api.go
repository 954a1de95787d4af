// Package api is the programmatic surface of uwflow: run a driver task,
// list drivers and their tasks, and report what a driver needs before it
// runs. The CLI is a thin layer over this package.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/drivers"
	"github.com/uwflow/uwflow/internal/metrics"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// Request selects one driver task to satisfy.
type Request struct {
	Driver     string
	Task       string
	Cycle      time.Time // required by cycle-dependent drivers, ignored otherwise
	ConfigPath string    // empty reads TOML from Stdin
	Stdin      io.Reader // defaults to os.Stdin
	Batch      bool
	DryRun     bool
	GraphPath  string // on success, the task graph is written here as DOT
}

// Recorder stores run records. *history.DB implements it.
type Recorder interface {
	Record(domain.RunRecord) error
}

// Service executes requests. The zero value is not usable; use NewService.
type Service struct {
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewService returns a service logging to logger (slog.Default() if nil) and
// recording runs to recorder (nothing is recorded if nil).
func NewService(logger *slog.Logger, recorder Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, recorder: recorder, now: time.Now}
}

// Execute satisfies req.Task on req.Driver and reports success. Usage and
// config errors are returned before anything touches the filesystem.
func Execute(ctx context.Context, req Request) (bool, error) {
	return NewService(nil, nil).Execute(ctx, req)
}

// Execute satisfies req.Task on req.Driver and reports success.
func (s *Service) Execute(ctx context.Context, req Request) (bool, error) {
	d, err := s.open(req.Driver, req.ConfigPath, req.Stdin, drivers.Options{
		Cycle:  req.Cycle,
		Batch:  req.Batch,
		DryRun: req.DryRun,
	})
	if err != nil {
		return false, err
	}
	if _, err := d.Task(req.Task); err != nil {
		return false, err
	}

	start := s.now()
	trace, err := d.Satisfy(ctx, req.Task)
	elapsed := s.now().Sub(start)
	if trace == nil {
		return false, err
	}
	s.observe(req, d, trace, err, elapsed)
	s.record(req, d, start, elapsed, err)

	if err != nil {
		return false, err
	}
	if req.GraphPath != "" {
		if err := writeGraph(req.GraphPath, trace); err != nil {
			return false, err
		}
	}
	return true, nil
}

// open loads configuration and builds the named driver.
func (s *Service) open(name, configPath string, stdin io.Reader, opts drivers.Options) (drivers.Driver, error) {
	kind, err := drivers.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !kind.TimeInvariant && opts.Cycle.IsZero() {
		return nil, fmt.Errorf("%w: driver %s", domain.ErrCycleRequired, name)
	}
	cfg, err := config.Load(configPath, stdin)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	opts.Logger = s.logger
	return kind.New(opts)
}

func (s *Service) observe(req Request, d drivers.Driver, trace *taskgraph.Trace, err error, elapsed time.Duration) {
	for _, n := range trace.Nodes() {
		metrics.TaskStates.WithLabelValues(req.Driver, string(n.State)).Inc()
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case req.DryRun:
		outcome = "dry_run"
	}
	metrics.Invocations.WithLabelValues(req.Driver, req.Task, outcome).Inc()
	metrics.InvocationDuration.WithLabelValues(req.Driver, req.Task).Observe(elapsed.Seconds())
	if r := d.LastRun(); r != nil && !r.DryRun {
		metrics.Launches.WithLabelValues(req.Driver, string(r.Mode)).Inc()
		code := r.ExitCode
		if r.Job != nil && r.Job.ExitCode != 0 {
			code = r.Job.ExitCode
		}
		metrics.LastExitCode.WithLabelValues(req.Driver).Set(float64(code))
	}
}

// record stores the run in history. Dry runs are not recorded.
func (s *Service) record(req Request, d drivers.Driver, start time.Time, elapsed time.Duration, err error) {
	if s.recorder == nil || req.DryRun {
		return
	}
	rec := domain.RunRecord{
		ID:        uuid.NewString(),
		Driver:    req.Driver,
		Task:      req.Task,
		Rundir:    d.Rundir(),
		OK:        err == nil,
		StartedAt: start,
		Duration:  elapsed,
	}
	if kind, _ := drivers.Lookup(req.Driver); !kind.TimeInvariant {
		rec.Cycle = req.Cycle
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if r := d.LastRun(); r != nil {
		rec.Mode = string(r.Mode)
		rec.ExitCode = r.ExitCode
		if r.Job != nil {
			rec.JobID = r.Job.ID
			if r.Job.ExitCode != 0 {
				rec.ExitCode = r.Job.ExitCode
			}
		}
	}
	if err := s.recorder.Record(rec); err != nil {
		s.logger.Warn("Could not record run", "error", err)
	}
}

func writeGraph(path string, trace *taskgraph.Trace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(trace.DOT()), 0o644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

// ─── Catalog ────────────────────────────────────────────────────────────────

// Drivers returns the names of all drivers.
func Drivers() []string {
	var names []string
	for _, k := range drivers.Kinds() {
		names = append(names, k.Name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns the task catalog of driver: task name → help text.
func Tasks(driver string) (map[string]string, error) {
	kind, err := drivers.Lookup(driver)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(kind.Catalog))
	for _, e := range kind.Catalog {
		out[e.Name] = e.Help
	}
	return out, nil
}
