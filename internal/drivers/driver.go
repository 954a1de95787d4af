// Package drivers binds configuration for one forecast component to the task
// graph that prepares and runs it.
//
// Each driver type carries a static task registry: the task names a caller
// may ask for, each with a one-line help text and a builder producing the
// task spec from the driver's configuration. Building a spec only reads
// configuration; side effects happen when the engine satisfies it.
package drivers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/uwflow/uwflow/internal/batch"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// Driver is implemented by every forecast component driver.
type Driver interface {
	Name() string
	Rundir() string

	// Requirements lists the external inputs implied by configuration.
	Requirements() ([]domain.Requirement, error)
	// Resources is the scheduler resource request.
	Resources() (domain.Resources, error)
	// Validate stages inputs and writes configs and the runscript without
	// launching the executable.
	Validate(ctx context.Context) (*taskgraph.Trace, error)
	// Output names the files a completed run leaves behind.
	Output() (map[string]string, error)
	// JobCard renders the batch script without submitting it.
	JobCard() (*batch.Script, error)

	Task(name string) (*taskgraph.Spec, error)
	Catalog() []CatalogEntry
	Satisfy(ctx context.Context, task string) (*taskgraph.Trace, error)

	// LastRun is the result of the most recent launch, if any.
	LastRun() *execution.Result
}

// Options configures a driver instance.
type Options struct {
	Config config.Section // whole configuration; each driver reads its own block
	Cycle  time.Time      // required by cycle-dependent drivers
	Batch  bool
	DryRun bool
	Logger *slog.Logger
}

// ─── Driver Kinds ───────────────────────────────────────────────────────────

// Kind describes one driver type.
type Kind struct {
	Name          string
	Help          string
	TimeInvariant bool
	Catalog       []CatalogEntry
	New           func(Options) (Driver, error)
}

var kinds = map[string]Kind{
	"orog": {
		Name:          "orog",
		Help:          "Orography generation (UFS_UTILS orog)",
		TimeInvariant: true,
		Catalog:       orogTasks.Catalog(),
		New:           func(o Options) (Driver, error) { return NewOrog(o) },
	},
	"shave": {
		Name:          "shave",
		Help:          "Grid halo trimming (UFS_UTILS shave)",
		TimeInvariant: true,
		Catalog:       shaveTasks.Catalog(),
		New:           func(o Options) (Driver, error) { return NewShave(o) },
	},
	"fv3": {
		Name:    "fv3",
		Help:    "FV3 forecast model",
		Catalog: fv3Tasks.Catalog(),
		New:     func(o Options) (Driver, error) { return NewFV3(o) },
	},
}

// Lookup returns the kind registered under name.
func Lookup(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", domain.ErrUnknownDriver, name)
	}
	return k, nil
}

// Kinds returns every driver kind sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// New builds the named driver.
func New(name string, opts Options) (Driver, error) {
	k, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return k.New(opts)
}

var (
	_ Driver = (*Orog)(nil)
	_ Driver = (*Shave)(nil)
	_ Driver = (*FV3)(nil)
)
