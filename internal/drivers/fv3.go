package drivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.yaml.in/yaml/v2"

	"github.com/uwflow/uwflow/internal/asset"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/fieldtable"
	"github.com/uwflow/uwflow/internal/nml"
	"github.com/uwflow/uwflow/internal/rundir"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

var fv3Tasks = NewRegistry(append(commonTasks[*FV3](),
	Task[*FV3]{Name: "boundary_files", Help: "Lateral boundary-condition files", Build: (*FV3).boundaryFiles},
	Task[*FV3]{Name: "field_table", Help: "The field_table file", Build: (*FV3).fieldTable},
	Task[*FV3]{Name: "model_configure", Help: "The model_configure file", Build: (*FV3).modelConfigure},
	Task[*FV3]{Name: "namelist_file", Help: "The namelist file (input.nml)", Build: (*FV3).namelistFile},
	Task[*FV3]{Name: "restart_directory", Help: "The RESTART directory", Build: (*FV3).restartDirectory},
)...)

// FV3 drives the FV3 forecast model. It is cycle-dependent.
type FV3 struct {
	*Base
}

// NewFV3 returns an fv3 driver. opts.Cycle must be set.
func NewFV3(opts Options) (*FV3, error) {
	b, err := newBase("fv3", false, opts)
	if err != nil {
		return nil, err
	}
	f := &FV3{Base: b}
	b.model = f
	return f, nil
}

// Task builds the named task.
func (f *FV3) Task(name string) (*taskgraph.Spec, error) {
	return fv3Tasks.Build(f, name)
}

// ─── Boundary Files ─────────────────────────────────────────────────────────

type boundaryLink struct {
	link   string
	target string
}

// boundaryLinks maps INPUT/gfs_bndy.tile<T>.<FH>.nc to the lateral boundary
// template for every tile and boundary hour. Boundary hours run from offset
// to length+offset in steps of interval_hours; the forecast hour in the link
// name is relative to the offset.
func (f *FV3) boundaryLinks() ([]boundaryLink, error) {
	if !f.cfg.Has("lateral_boundary_conditions") {
		return nil, nil
	}
	lbcs, err := f.cfg.Section("lateral_boundary_conditions")
	if err != nil {
		return nil, err
	}
	tmpl, err := lbcs.String("path")
	if err != nil {
		return nil, err
	}
	interval, err := lbcs.Int("interval_hours")
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: fv3.lateral_boundary_conditions.interval_hours must be positive", domain.ErrConfigType)
	}
	offset, err := lbcs.IntOr("offset", 0)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = -offset
	}
	length, err := f.cfg.Int("length")
	if err != nil {
		return nil, err
	}
	tiles, err := f.tiles()
	if err != nil {
		return nil, err
	}

	var links []boundaryLink
	for _, tile := range tiles {
		for hour := offset; hour <= length+offset; hour += interval {
			target, err := expandTemplate(tmpl, map[string]int{"tile": tile, "forecast_hour": hour})
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("gfs_bndy.tile%d.%03d.nc", tile, hour-offset)
			links = append(links, boundaryLink{link: f.path(rundir.InputDir, name), target: target})
		}
	}
	return links, nil
}

func (f *FV3) tiles() ([]int, error) {
	if !f.cfg.Has("tiles") {
		return []int{7}, nil
	}
	v, _ := f.cfg.Value("tiles")
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: fv3.tiles: want array, got %T", domain.ErrConfigType, v)
	}
	tiles := make([]int, 0, len(arr))
	for _, item := range arr {
		n, ok := item.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: fv3.tiles: want integers, got %T", domain.ErrConfigType, item)
		}
		tiles = append(tiles, int(n))
	}
	return tiles, nil
}

var placeholder = regexp.MustCompile(`\{(\w+)(?::(0?)(\d+)d)?\}`)

// expandTemplate fills {name} and {name:03d} style placeholders.
func expandTemplate(tmpl string, values map[string]int) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		v, ok := values[parts[1]]
		if !ok {
			missing = parts[1]
			return m
		}
		if parts[3] == "" {
			return strconv.Itoa(v)
		}
		width, _ := strconv.Atoi(parts[3])
		if parts[2] == "0" {
			return fmt.Sprintf("%0*d", width, v)
		}
		return fmt.Sprintf("%*d", width, v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: unknown template field %q in %q", domain.ErrConfigType, missing, tmpl)
	}
	return out, nil
}

func (f *FV3) boundaryFiles() (*taskgraph.Spec, error) {
	links, err := f.boundaryLinks()
	if err != nil {
		return nil, err
	}
	reqs := make([]*taskgraph.Spec, 0, len(links))
	for _, l := range links {
		reqs = append(reqs, symlink(f.logger, l.target, l.link))
	}
	return taskgraph.Composite(f.taskname("lateral boundary-condition files"), reqs...), nil
}

// ─── Input Files ────────────────────────────────────────────────────────────

// fieldTable renders field_table from update_values, or copies base_file
// when no values are given. Setting both is a config error.
func (f *FV3) fieldTable() (*taskgraph.Spec, error) {
	ft, err := f.cfg.Section("field_table")
	if err != nil {
		return nil, err
	}
	path := f.path("field_table")
	if !ft.Has("update_values") {
		src, err := ft.String("base_file")
		if err != nil {
			return nil, err
		}
		return filecopy(f.logger, src, path), nil
	}
	if ft.Has("base_file") {
		return nil, fmt.Errorf("%w: %s: base_file and update_values are exclusive", domain.ErrConfigType, ft.Path())
	}
	tracers, err := ft.Section("update_values")
	if err != nil {
		return nil, err
	}
	order, err := ft.Strings("tracers")
	if err != nil {
		return nil, err
	}
	data, err := fieldtable.Marshal(tracers.Map(), order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigType, err)
	}
	return writeFile(f.logger, f.taskname(path), path, string(data)), nil
}

func (f *FV3) modelConfigure() (*taskgraph.Spec, error) {
	mc, err := f.cfg.Section("model_configure")
	if err != nil {
		return nil, err
	}
	base, err := mc.StringOr("base_file", "")
	if err != nil {
		return nil, err
	}
	updates, err := mc.OptSection("update_values")
	if err != nil {
		return nil, err
	}

	var requires []*taskgraph.Spec
	if base != "" {
		requires = append(requires, existing(base))
	}
	path := f.path("model_configure")
	return taskgraph.Atomic(
		f.taskname(path),
		asset.File(path),
		func(context.Context) error {
			data, err := f.renderModelConfigure(base, updates)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			return os.WriteFile(path, data, 0o644)
		},
		requires...,
	).WithPreview(func(context.Context) {
		f.logger.Info("Would write", "path", path, "base", base, "updates", updates.Keys())
	}), nil
}

// renderModelConfigure loads the optional base document, applies updates in
// sorted key order and sets the start date fields from the cycle. Keys keep
// the base document's order; new keys are appended.
func (f *FV3) renderModelConfigure(base string, updates config.Section) ([]byte, error) {
	var doc yaml.MapSlice
	if base != "" {
		data, err := os.ReadFile(base)
		if err != nil {
			return nil, fmt.Errorf("read model_configure base: %w", err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse model_configure base: %w", err)
		}
	}
	for _, k := range updates.Keys() {
		v, _ := updates.Value(k)
		doc = setYAML(doc, k, v)
	}
	c := f.cycle.UTC()
	doc = setYAML(doc, "start_year", c.Year())
	doc = setYAML(doc, "start_month", int(c.Month()))
	doc = setYAML(doc, "start_day", c.Day())
	doc = setYAML(doc, "start_hour", c.Hour())
	doc = setYAML(doc, "start_minute", c.Minute())
	doc = setYAML(doc, "start_second", c.Second())
	return yaml.Marshal(doc)
}

func setYAML(doc yaml.MapSlice, key string, value any) yaml.MapSlice {
	for i := range doc {
		if k, ok := doc[i].Key.(string); ok && k == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, yaml.MapItem{Key: key, Value: value})
}

// namelistFile writes input.nml: update_values overlaid on the optional
// base_file namelist.
func (f *FV3) namelistFile() (*taskgraph.Spec, error) {
	nl, err := f.cfg.Section("namelist")
	if err != nil {
		return nil, err
	}
	base, err := nl.StringOr("base_file", "")
	if err != nil {
		return nil, err
	}
	groups, err := nl.OptSection("update_values")
	if err != nil {
		return nil, err
	}
	updates := groups.Map()
	data, err := nml.Marshal(updates)
	if err != nil {
		return nil, err
	}
	path := f.path("input.nml")
	if base == "" {
		return writeFile(f.logger, f.taskname(path), path, string(data)), nil
	}

	return taskgraph.Atomic(
		f.taskname(path),
		asset.File(path),
		func(context.Context) error {
			groups, err := nml.ReadFile(base)
			if err != nil {
				return fmt.Errorf("read namelist base: %w", err)
			}
			merged, err := nml.Merge(groups, updates)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			return nml.WriteFile(path, merged)
		},
		existing(base),
	).WithPreview(func(context.Context) {
		f.logger.Info("Would write", "path", path, "base", base, "updates", groups.Keys())
	}), nil
}

func (f *FV3) restartDirectory() (*taskgraph.Spec, error) {
	path := f.path(rundir.RestartDir)
	return taskgraph.Atomic(
		f.taskname(path),
		asset.Dir(path),
		func(context.Context) error { return os.MkdirAll(path, 0o755) },
	), nil
}

func (f *FV3) provisionedRundir() (*taskgraph.Spec, error) {
	builders := []func() (*taskgraph.Spec, error){
		f.boundaryFiles,
		f.fieldTable,
		f.filesCopied,
		f.filesLinked,
		f.modelConfigure,
		f.namelistFile,
		f.restartDirectory,
		f.runscript,
	}
	reqs := make([]*taskgraph.Spec, 0, len(builders))
	for _, build := range builders {
		spec, err := build()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, spec)
	}
	return taskgraph.Composite(f.taskname("provisioned run directory"), reqs...), nil
}

// ─── Execution ──────────────────────────────────────────────────────────────

func (f *FV3) runCommand() (string, error) {
	return f.executable()
}

// env is the MPI and OpenMP environment the model expects.
func (f *FV3) env() ([]execution.EnvVar, error) {
	exec, err := f.execution()
	if err != nil {
		return nil, err
	}
	threads, err := exec.IntOr("threads", 1)
	if err != nil {
		return nil, err
	}
	stack, err := exec.StringOr("stacksize", "512m")
	if err != nil {
		return nil, err
	}
	return []execution.EnvVar{
		{Key: "KMP_AFFINITY", Value: "scatter"},
		{Key: "OMP_NUM_THREADS", Value: strconv.Itoa(threads)},
		{Key: "OMP_STACKSIZE", Value: stack},
		{Key: "MPI_TYPE_DEPTH", Value: "20"},
		{Key: "ESMF_RUNTIME_COMPLIANCECHECK", Value: "OFF:depth=4"},
	}, nil
}

func (f *FV3) requirements() ([]domain.Requirement, error) {
	var reqs []domain.Requirement
	if ft, err := f.cfg.Section("field_table"); err == nil {
		if src, err := ft.String("base_file"); err == nil {
			reqs = append(reqs, domain.Requirement{Name: "field_table", Kind: domain.RequireFile, Path: src})
		}
	}
	if nl, err := f.cfg.OptSection("namelist"); err == nil {
		if base, _ := nl.StringOr("base_file", ""); base != "" {
			reqs = append(reqs, domain.Requirement{Name: "namelist", Kind: domain.RequireFile, Path: base})
		}
	}
	if mc, err := f.cfg.OptSection("model_configure"); err == nil {
		if base, _ := mc.StringOr("base_file", ""); base != "" {
			reqs = append(reqs, domain.Requirement{Name: "model_configure", Kind: domain.RequireFile, Path: base})
		}
	}
	links, err := f.boundaryLinks()
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		reqs = append(reqs, domain.Requirement{Name: filepath.Base(l.link), Kind: domain.RequireLinkTarget, Path: l.target})
	}
	return reqs, nil
}

func (f *FV3) output() (map[string]string, error) {
	out := map[string]string{"restart": f.path(rundir.RestartDir)}
	files, err := f.cfg.Strings("output_files")
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		out[name] = f.path(name)
	}
	return out, nil
}
