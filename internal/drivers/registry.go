package drivers

import (
	"fmt"
	"sort"

	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// CatalogEntry is one public task of a driver type.
type CatalogEntry struct {
	Name string
	Help string
}

// Task is a registry entry for driver type D.
type Task[D any] struct {
	Name  string
	Help  string
	Build func(D) (*taskgraph.Spec, error)
}

// Registry maps task names to builders for one driver type.
type Registry[D any] struct {
	tasks map[string]Task[D]
}

// NewRegistry builds a registry and panics on an empty name, a missing
// builder or a duplicate name. Registries are package-level values, so a bad
// entry fails at startup.
func NewRegistry[D any](tasks ...Task[D]) *Registry[D] {
	r := &Registry[D]{tasks: make(map[string]Task[D], len(tasks))}
	for _, t := range tasks {
		if t.Name == "" || t.Build == nil {
			panic(fmt.Sprintf("drivers: incomplete task entry %q", t.Name))
		}
		if _, dup := r.tasks[t.Name]; dup {
			panic(fmt.Sprintf("drivers: %v: %q", domain.ErrDuplicateTask, t.Name))
		}
		r.tasks[t.Name] = t
	}
	return r
}

// Lookup returns the entry registered under name.
func (r *Registry[D]) Lookup(name string) (Task[D], error) {
	t, ok := r.tasks[name]
	if !ok {
		return Task[D]{}, fmt.Errorf("%w: %q", domain.ErrUnknownTask, name)
	}
	return t, nil
}

// Build resolves name and builds its spec for d.
func (r *Registry[D]) Build(d D, name string) (*taskgraph.Spec, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.Build(d)
}

// Catalog lists the registered tasks sorted by name.
func (r *Registry[D]) Catalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, CatalogEntry{Name: t.Name, Help: t.Help})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ─── Common Tasks ───────────────────────────────────────────────────────────

type hasBase interface {
	base() *Base
}

// commonTasks are registered for every driver type.
func commonTasks[D hasBase]() []Task[D] {
	return []Task[D]{
		{Name: "files_copied", Help: "Files copied for run", Build: func(d D) (*taskgraph.Spec, error) { return d.base().filesCopied() }},
		{Name: "files_linked", Help: "Files linked for run", Build: func(d D) (*taskgraph.Spec, error) { return d.base().filesLinked() }},
		{Name: "rundir", Help: "Run directory with INPUT and RESTART", Build: func(d D) (*taskgraph.Spec, error) { return d.base().rundirTask(), nil }},
		{Name: "runscript", Help: "The runscript", Build: func(d D) (*taskgraph.Spec, error) { return d.base().runscript() }},
		{Name: "run", Help: "A run, direct or via the batch system", Build: func(d D) (*taskgraph.Spec, error) { return d.base().run() }},
		{Name: "validate", Help: "Requirements present and run directory provisioned", Build: func(d D) (*taskgraph.Spec, error) { return d.base().validate() }},
		{Name: "provisioned_rundir", Help: "Run directory provisioned with all required content", Build: func(d D) (*taskgraph.Spec, error) { return d.base().model.provisionedRundir() }},
	}
}
