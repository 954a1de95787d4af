package api

import (
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/drivers"
)

// RequirementStatus is a requirement and whether it is satisfied now.
type RequirementStatus struct {
	domain.Requirement
	Present bool
}

// Report is what a driver needs, asks for and produces, computed from
// configuration alone.
type Report struct {
	Driver       string
	Rundir       string
	Requirements []RequirementStatus
	Resources    domain.Resources
	Outputs      map[string]string
	JobCard      string
}

// Missing returns the requirements that are not present.
func (r *Report) Missing() []RequirementStatus {
	var out []RequirementStatus
	for _, req := range r.Requirements {
		if !req.Present {
			out = append(out, req)
		}
	}
	return out
}

// Preflight reports on driver without running any task.
func (s *Service) Preflight(driver, configPath string, stdin io.Reader, cycle time.Time) (*Report, error) {
	d, err := s.open(driver, configPath, stdin, drivers.Options{Cycle: cycle})
	if err != nil {
		return nil, err
	}
	reqs, err := d.Requirements()
	if err != nil {
		return nil, err
	}
	res, err := d.Resources()
	if err != nil {
		return nil, err
	}
	outputs, err := d.Output()
	if err != nil {
		return nil, err
	}
	card, err := d.JobCard()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Driver:    driver,
		Rundir:    d.Rundir(),
		Resources: res,
		Outputs:   outputs,
		JobCard:   card.String(),
	}
	for _, r := range reqs {
		report.Requirements = append(report.Requirements, RequirementStatus{Requirement: r, Present: present(r)})
	}
	return report, nil
}

func present(r domain.Requirement) bool {
	if r.Kind == domain.RequireExecutable {
		_, err := exec.LookPath(r.Path)
		return err == nil
	}
	_, err := os.Stat(r.Path)
	return err == nil
}
