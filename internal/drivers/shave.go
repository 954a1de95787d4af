package drivers

import (
	"fmt"
	"path/filepath"

	"github.com/uwflow/uwflow/internal/asset"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/execution"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

var shaveTasks = NewRegistry(append(commonTasks[*Shave](),
	Task[*Shave]{Name: "input_grid_file", Help: "The input grid file", Build: (*Shave).inputGridFile},
	Task[*Shave]{Name: "input_config_file", Help: "The input config file (shave.cfg)", Build: (*Shave).inputConfigFile},
)...)

// Shave drives UFS_UTILS shave.
type Shave struct {
	*Base
}

// NewShave returns a shave driver.
func NewShave(opts Options) (*Shave, error) {
	b, err := newBase("shave", true, opts)
	if err != nil {
		return nil, err
	}
	s := &Shave{Base: b}
	b.model = s
	return s, nil
}

// Task builds the named task.
func (s *Shave) Task(name string) (*taskgraph.Spec, error) {
	return shaveTasks.Build(s, name)
}

func (s *Shave) settings() (config.Section, error) {
	return s.cfg.Section("config")
}

func (s *Shave) inputGridFile() (*taskgraph.Spec, error) {
	c, err := s.settings()
	if err != nil {
		return nil, err
	}
	grid, err := c.String("input_grid_file")
	if err != nil {
		return nil, err
	}
	return taskgraph.External(s.taskname("Input grid file "+grid), asset.File(grid)), nil
}

func (s *Shave) inputConfigFile() (*taskgraph.Spec, error) {
	grid, err := s.inputGridFile()
	if err != nil {
		return nil, err
	}
	c, err := s.settings()
	if err != nil {
		return nil, err
	}
	var n [3]int
	for i, key := range []string{"nx", "ny", "nhalo"} {
		if n[i], err = c.Int(key); err != nil {
			return nil, err
		}
	}
	in, err := c.String("input_grid_file")
	if err != nil {
		return nil, err
	}
	out, err := c.String("output_grid_file")
	if err != nil {
		return nil, err
	}
	content := fmt.Sprintf("%d %d %d '%s' '%s'\n", n[0], n[1], n[2], in, out)
	path := s.path("shave.cfg")
	return writeFile(s.logger, s.taskname(path), path, content, grid), nil
}

func (s *Shave) provisionedRundir() (*taskgraph.Spec, error) {
	input, err := s.inputConfigFile()
	if err != nil {
		return nil, err
	}
	script, err := s.runscript()
	if err != nil {
		return nil, err
	}
	return taskgraph.Composite(s.taskname("provisioned run directory"), input, script), nil
}

func (s *Shave) runCommand() (string, error) {
	exe, err := s.executable()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s < shave.cfg", exe), nil
}

func (s *Shave) env() ([]execution.EnvVar, error) { return nil, nil }

func (s *Shave) requirements() ([]domain.Requirement, error) {
	c, err := s.settings()
	if err != nil {
		return nil, err
	}
	grid, err := c.String("input_grid_file")
	if err != nil {
		return nil, err
	}
	return []domain.Requirement{{Name: "input_grid_file", Kind: domain.RequireFile, Path: grid}}, nil
}

func (s *Shave) output() (map[string]string, error) {
	c, err := s.settings()
	if err != nil {
		return nil, err
	}
	out, err := c.String("output_grid_file")
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(out) {
		out = s.path(out)
	}
	return map[string]string{"path": out}, nil
}
