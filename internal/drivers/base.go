package drivers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/uwflow/uwflow/internal/asset"
	"github.com/uwflow/uwflow/internal/batch"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/rundir"
	"github.com/uwflow/uwflow/internal/scheduler"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// model is what a concrete driver supplies to Base.
type model interface {
	Task(name string) (*taskgraph.Spec, error)
	runCommand() (string, error)
	env() ([]execution.EnvVar, error)
	provisionedRundir() (*taskgraph.Spec, error)
	requirements() ([]domain.Requirement, error)
	output() (map[string]string, error)
}

// Base holds the state and tasks every driver shares. Concrete drivers embed
// it and register themselves as its model.
type Base struct {
	name   string
	root   config.Section
	cfg    config.Section
	cycle  time.Time
	rundir string
	batch  bool
	dryRun bool

	logger  *slog.Logger
	engine  *taskgraph.Engine
	client  scheduler.Client
	backend *execution.Backend
	model   model
	last    *execution.Result
}

func newBase(name string, timeInvariant bool, opts Options) (*Base, error) {
	if !timeInvariant && opts.Cycle.IsZero() {
		return nil, fmt.Errorf("%w: driver %s", domain.ErrCycleRequired, name)
	}
	cfg, err := opts.Config.Section(name)
	if err != nil {
		return nil, err
	}
	dir, err := cfg.String("rundir")
	if err != nil {
		return nil, err
	}
	if cfg.Has("exist_act") {
		act, err := cfg.String("exist_act")
		if err != nil {
			return nil, err
		}
		if _, err := rundir.ParsePolicy(act); err != nil {
			return nil, err
		}
	}
	platform, err := opts.Config.OptSection("platform")
	if err != nil {
		return nil, err
	}
	sc := scheduler.DefaultConfig()
	if sc.Name, err = platform.StringOr("scheduler", scheduler.LocalName); err != nil {
		return nil, err
	}
	if sc.DirectivePrefix, err = platform.StringOr("directive_prefix", ""); err != nil {
		return nil, err
	}
	if sc.SubmitCommand, err = platform.StringOr("submit_command", ""); err != nil {
		return nil, err
	}
	client, err := scheduler.New(sc)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", name)
	if timeInvariant {
		opts.Cycle = time.Time{}
	}
	return &Base{
		name:    name,
		root:    opts.Config,
		cfg:     cfg,
		cycle:   opts.Cycle,
		rundir:  dir,
		batch:   opts.Batch,
		dryRun:  opts.DryRun,
		logger:  logger,
		engine:  taskgraph.NewEngine(logger, opts.DryRun),
		client:  client,
		backend: execution.NewBackend(logger, client, opts.DryRun),
	}, nil
}

func (b *Base) base() *Base { return b }

// Name returns the driver name.
func (b *Base) Name() string { return b.name }

// Rundir returns the run directory path.
func (b *Base) Rundir() string { return b.rundir }

// LastRun returns the result of the latest launch, or nil.
func (b *Base) LastRun() *execution.Result { return b.last }

// Catalog lists the driver's tasks.
func (b *Base) Catalog() []CatalogEntry {
	k, err := Lookup(b.name)
	if err != nil {
		return nil
	}
	return k.Catalog
}

// taskname prefixes a task description with the driver name and, for
// cycle-dependent drivers, the cycle.
func (b *Base) taskname(suffix string) string {
	if b.cycle.IsZero() {
		return fmt.Sprintf("%s %s", b.name, suffix)
	}
	return fmt.Sprintf("%s %s %s", b.cycle.UTC().Format("20060102 15Z"), b.name, suffix)
}

func (b *Base) path(elem ...string) string {
	return filepath.Join(append([]string{b.rundir}, elem...)...)
}

// Satisfy builds the named task and brings it to readiness. When the config
// sets exist_act, the run directory is provisioned under that policy first.
func (b *Base) Satisfy(ctx context.Context, task string) (*taskgraph.Trace, error) {
	spec, err := b.model.Task(task)
	if err != nil {
		return nil, err
	}
	if act, _ := b.cfg.StringOr("exist_act", ""); act != "" && !b.dryRun {
		policy, err := rundir.ParsePolicy(act)
		if err != nil {
			return nil, err
		}
		if err := rundir.Provision(b.rundir, policy, b.logger); err != nil {
			return nil, err
		}
	}
	return b.engine.Satisfy(ctx, spec)
}

// Validate satisfies the validate task.
func (b *Base) Validate(ctx context.Context) (*taskgraph.Trace, error) {
	return b.Satisfy(ctx, "validate")
}

// Requirements lists the executable, copy and link sources, then the
// driver's own inputs.
func (b *Base) Requirements() ([]domain.Requirement, error) {
	exe, err := b.executable()
	if err != nil {
		return nil, err
	}
	reqs := []domain.Requirement{{Name: "executable", Kind: domain.RequireExecutable, Path: exe}}

	copies, err := b.cfg.StringMap("files_to_copy")
	if err != nil {
		return nil, err
	}
	for _, dst := range sortedKeys(copies) {
		reqs = append(reqs, domain.Requirement{Name: dst, Kind: domain.RequireFile, Path: copies[dst]})
	}
	links, err := b.cfg.StringMap("files_to_link")
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(links) {
		reqs = append(reqs, domain.Requirement{Name: name, Kind: domain.RequireLinkTarget, Path: links[name]})
	}

	own, err := b.model.requirements()
	if err != nil {
		return nil, err
	}
	return append(reqs, own...), nil
}

// Resources returns the platform account and scheduler plus the execution
// block's batchargs.
func (b *Base) Resources() (domain.Resources, error) {
	platform, err := b.root.OptSection("platform")
	if err != nil {
		return domain.Resources{}, err
	}
	account, err := platform.StringOr("account", "")
	if err != nil {
		return domain.Resources{}, err
	}
	exec, err := b.execution()
	if err != nil {
		return domain.Resources{}, err
	}
	args, err := exec.OptSection("batchargs")
	if err != nil {
		return domain.Resources{}, err
	}
	return domain.Resources{Account: account, Scheduler: b.client.Name(), Fields: args.Map()}, nil
}

// Output returns the driver's expected outputs.
func (b *Base) Output() (map[string]string, error) {
	return b.model.output()
}

// JobCard renders the batch script for this driver's run command.
func (b *Base) JobCard() (*batch.Script, error) {
	cmd, err := b.command()
	if err != nil {
		return nil, err
	}
	res, err := b.Resources()
	if err != nil {
		return nil, err
	}
	return b.backend.Render(cmd, res)
}

// ─── Execution ──────────────────────────────────────────────────────────────

func (b *Base) execution() (config.Section, error) {
	return b.cfg.Section("execution")
}

func (b *Base) executable() (string, error) {
	exec, err := b.execution()
	if err != nil {
		return "", err
	}
	return exec.String("executable")
}

// command assembles the shared run command for both launch modes.
func (b *Base) command() (execution.Command, error) {
	exec, err := b.execution()
	if err != nil {
		return execution.Command{}, err
	}
	run, err := b.model.runCommand()
	if err != nil {
		return execution.Command{}, err
	}
	mpicmd, err := exec.StringOr("mpicmd", "")
	if err != nil {
		return execution.Command{}, err
	}
	mpiargs, err := exec.Strings("mpiargs")
	if err != nil {
		return execution.Command{}, err
	}
	envcmds, err := exec.Strings("envcmds")
	if err != nil {
		return execution.Command{}, err
	}
	env, err := b.model.env()
	if err != nil {
		return execution.Command{}, err
	}
	return execution.Command{Run: run, MPICmd: mpicmd, MPIArgs: mpiargs, Env: env, EnvCmds: envcmds}, nil
}

func (b *Base) launch(ctx context.Context, cmd execution.Command, res domain.Resources) (*execution.Result, error) {
	var (
		result *execution.Result
		err    error
	)
	if b.batch {
		result, err = b.backend.Batch(ctx, b.rundir, b.name, cmd, res)
	} else {
		result, err = b.backend.Direct(ctx, b.rundir, b.name, cmd)
	}
	if result != nil {
		b.last = result
	}
	return result, err
}

// ─── Common Tasks ───────────────────────────────────────────────────────────

func (b *Base) filesCopied() (*taskgraph.Spec, error) {
	copies, err := b.cfg.StringMap("files_to_copy")
	if err != nil {
		return nil, err
	}
	reqs := make([]*taskgraph.Spec, 0, len(copies))
	for _, dst := range sortedKeys(copies) {
		reqs = append(reqs, filecopy(b.logger, copies[dst], b.path(dst)))
	}
	return taskgraph.Composite(b.taskname("files copied"), reqs...), nil
}

func (b *Base) filesLinked() (*taskgraph.Spec, error) {
	links, err := b.cfg.StringMap("files_to_link")
	if err != nil {
		return nil, err
	}
	reqs := make([]*taskgraph.Spec, 0, len(links))
	for _, name := range sortedKeys(links) {
		reqs = append(reqs, symlink(b.logger, links[name], b.path(name)))
	}
	return taskgraph.Composite(b.taskname("files linked"), reqs...), nil
}

func (b *Base) rundirTask() *taskgraph.Spec {
	dirs := append([]string{b.rundir}, rundir.Subdirs(b.rundir)...)
	return taskgraph.Atomic(
		b.taskname("run directory"),
		asset.Dirs(b.rundir, dirs...),
		func(context.Context) error { return rundir.Create(b.rundir, b.logger) },
	)
}

func (b *Base) runscript() (*taskgraph.Spec, error) {
	script, err := b.JobCard()
	if err != nil {
		return nil, err
	}
	path := execution.ScriptPath(b.rundir, b.name)
	return taskgraph.Atomic(
		b.taskname(path),
		asset.File(path),
		func(context.Context) error { return script.Write(path) },
		b.rundirTask(),
	).WithPreview(func(context.Context) {
		b.logger.Info("Would write", "path", path, "content", script.String())
	}), nil
}

func (b *Base) run() (*taskgraph.Spec, error) {
	provisioned, err := b.model.provisionedRundir()
	if err != nil {
		return nil, err
	}
	cmd, err := b.command()
	if err != nil {
		return nil, err
	}
	res, err := b.Resources()
	if err != nil {
		return nil, err
	}

	marker := execution.DoneMarker(b.rundir, b.name)
	suffix := "run via direct execution"
	if b.batch {
		marker = execution.SubmitMarker(b.rundir, b.name)
		suffix = "run via batch submission"
	}
	return taskgraph.Atomic(
		b.taskname(suffix),
		asset.File(marker),
		func(ctx context.Context) error {
			result, err := b.launch(ctx, cmd, res)
			if err != nil {
				return err
			}
			return result.Err()
		},
		provisioned,
	).WithPreview(func(ctx context.Context) {
		b.launch(ctx, cmd, res)
	}), nil
}

func (b *Base) validate() (*taskgraph.Spec, error) {
	reqs, err := b.Requirements()
	if err != nil {
		return nil, err
	}
	provisioned, err := b.model.provisionedRundir()
	if err != nil {
		return nil, err
	}
	specs := make([]*taskgraph.Spec, 0, len(reqs)+1)
	for _, r := range reqs {
		specs = append(specs, requirementTask(r))
	}
	specs = append(specs, provisioned)
	return taskgraph.Composite(b.taskname("validated"), specs...), nil
}
