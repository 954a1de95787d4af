package drivers

import (
	"fmt"
	"strings"

	"github.com/uwflow/uwflow/internal/asset"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// orogLine1Items is the fixed order of the optional first INPS line.
var orogLine1Items = []string{"mtnres", "lonb", "latb", "jcap", "nr", "nf1", "nf2", "efac", "blat"}

var orogTasks = NewRegistry(append(commonTasks[*Orog](),
	Task[*Orog]{Name: "grid_file", Help: "The input grid file", Build: (*Orog).gridFile},
	Task[*Orog]{Name: "input_config_file", Help: "The input config file (INPS)", Build: (*Orog).inputConfigFile},
)...)

// Orog drives UFS_UTILS orog.
type Orog struct {
	*Base
}

// NewOrog returns an orog driver.
func NewOrog(opts Options) (*Orog, error) {
	b, err := newBase("orog", true, opts)
	if err != nil {
		return nil, err
	}
	o := &Orog{Base: b}
	b.model = o
	return o, nil
}

// Task builds the named task.
func (o *Orog) Task(name string) (*taskgraph.Spec, error) {
	return orogTasks.Build(o, name)
}

func (o *Orog) inputConfigPath() string { return o.path("INPS") }

func (o *Orog) gridFile() (*taskgraph.Spec, error) {
	grid, err := o.cfg.String("grid_file")
	if err != nil {
		return nil, err
	}
	name := o.taskname("Input grid file")
	if grid == "none" {
		return taskgraph.External(name, nil), nil
	}
	return taskgraph.External(name, asset.File(grid)), nil
}

func (o *Orog) inputConfigFile() (*taskgraph.Spec, error) {
	grid, err := o.gridFile()
	if err != nil {
		return nil, err
	}
	content, err := o.inps()
	if err != nil {
		return nil, err
	}
	path := o.inputConfigPath()
	return writeFile(o.logger, o.taskname(path), path, content, grid), nil
}

// inps renders the INPS file: the optional old_line1_items line, grid file,
// orog file, mask flag and merge file.
func (o *Orog) inps() (string, error) {
	var lines []string
	if o.cfg.Has("old_line1_items") {
		items, err := o.cfg.Section("old_line1_items")
		if err != nil {
			return "", err
		}
		fields := make([]string, 0, len(orogLine1Items))
		for _, key := range orogLine1Items {
			v, err := items.Value(key)
			if err != nil {
				return "", err
			}
			fields = append(fields, config.Format(v))
		}
		lines = append(lines, strings.Join(fields, " "))
	}

	grid, err := o.cfg.String("grid_file")
	if err != nil {
		return "", err
	}
	lines = append(lines, grid)

	if o.cfg.Has("orog_file") {
		orog, err := o.cfg.String("orog_file")
		if err != nil {
			return "", err
		}
		lines = append(lines, orog)
	}

	mask := ".false."
	if o.cfg.Has("mask") {
		v, _ := o.cfg.Value("mask")
		switch m := v.(type) {
		case bool:
			if m {
				mask = ".true."
			}
		case string:
			mask = m
		default:
			return "", fmt.Errorf("%w: orog.mask: want boolean or string, got %T", domain.ErrConfigType, v)
		}
	}
	lines = append(lines, mask)

	merge, err := o.cfg.StringOr("merge", "none")
	if err != nil {
		return "", err
	}
	lines = append(lines, merge)
	return strings.Join(lines, "\n") + "\n", nil
}

func (o *Orog) provisionedRundir() (*taskgraph.Spec, error) {
	copied, err := o.filesCopied()
	if err != nil {
		return nil, err
	}
	linked, err := o.filesLinked()
	if err != nil {
		return nil, err
	}
	input, err := o.inputConfigFile()
	if err != nil {
		return nil, err
	}
	script, err := o.runscript()
	if err != nil {
		return nil, err
	}
	return taskgraph.Composite(o.taskname("provisioned run directory"), copied, linked, input, script), nil
}

func (o *Orog) runCommand() (string, error) {
	exe, err := o.executable()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s < INPS", exe), nil
}

func (o *Orog) env() ([]execution.EnvVar, error) { return nil, nil }

func (o *Orog) requirements() ([]domain.Requirement, error) {
	var reqs []domain.Requirement
	grid, err := o.cfg.String("grid_file")
	if err != nil {
		return nil, err
	}
	if grid != "none" {
		reqs = append(reqs, domain.Requirement{Name: "grid_file", Kind: domain.RequireFile, Path: grid})
	}
	if o.cfg.Has("orog_file") {
		orog, err := o.cfg.String("orog_file")
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, domain.Requirement{Name: "orog_file", Kind: domain.RequireFile, Path: orog})
	}
	return reqs, nil
}

func (o *Orog) output() (map[string]string, error) {
	return map[string]string{"path": o.path("out.oro.nc")}, nil
}
