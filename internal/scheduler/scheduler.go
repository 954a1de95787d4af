// Package scheduler submits rendered batch scripts to a batch system.
//
// uwflow does not know any particular batch system's syntax. Two clients
// exist:
//   - local:   no directives, runs the script with /bin/sh and waits
//   - command: directive prefix and submit command come from configuration,
//     every resource becomes "<prefix> --<key>=<value>"
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uwflow/uwflow/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config selects and configures a client.
type Config struct {
	Name            string // scheduler identity from platform.scheduler
	DirectivePrefix string // e.g. "#PBS"; required unless Name is "local"
	SubmitCommand   string // e.g. "qsub -V"; required unless Name is "local"
	Shell           string // interpreter for the local client (default /bin/sh)
}

// DefaultConfig returns the local client configuration.
func DefaultConfig() Config {
	return Config{Name: LocalName, Shell: "/bin/sh"}
}

// LocalName identifies the built-in local client.
const LocalName = "local"

// ─── Client ─────────────────────────────────────────────────────────────────

// Job is the handle a client returns for a submitted script.
type Job struct {
	ID          string
	Scheduler   string
	Script      string
	Output      string
	ExitCode    int
	SubmittedAt time.Time
}

// Client renders scheduler directives and submits scripts.
type Client interface {
	Name() string
	Directives(res domain.Resources) []string
	Submit(ctx context.Context, script string) (Job, error)
}

// New returns the client described by cfg.
func New(cfg Config) (Client, error) {
	if cfg.Name == "" || cfg.Name == LocalName {
		shell := cfg.Shell
		if shell == "" {
			shell = "/bin/sh"
		}
		return &Local{shell: shell}, nil
	}
	argv := strings.Fields(cfg.SubmitCommand)
	if strings.TrimSpace(cfg.DirectivePrefix) == "" || len(argv) == 0 {
		return nil, fmt.Errorf("%w: %q needs platform.directive_prefix and platform.submit_command",
			domain.ErrUnknownScheduler, cfg.Name)
	}
	return &Command{name: cfg.Name, prefix: cfg.DirectivePrefix, submit: argv}, nil
}

// ─── Local ──────────────────────────────────────────────────────────────────

// Local runs scripts on the current host.
type Local struct {
	shell string
}

func (l *Local) Name() string { return LocalName }

// Directives returns nothing; the local host takes no resource requests.
func (l *Local) Directives(domain.Resources) []string { return nil }

// Submit runs the script to completion. A non-zero exit is reported on the
// Job, not as an error.
func (l *Local) Submit(ctx context.Context, script string) (Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		Scheduler:   LocalName,
		Script:      script,
		SubmittedAt: time.Now(),
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, l.shell, script)
	cmd.Dir = filepath.Dir(script)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	job.Output = out.String()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			job.ExitCode = exitErr.ExitCode()
			return job, nil
		}
		return job, fmt.Errorf("run %s: %w", script, err)
	}
	return job, nil
}

// ─── Command ────────────────────────────────────────────────────────────────

// Command submits through an external command such as a batch system's
// submit tool.
type Command struct {
	name   string
	prefix string
	submit []string
}

func (c *Command) Name() string { return c.name }

// Directives renders the account first, then the job fields in sorted key
// order. Boolean fields become bare flags when true and are dropped when false.
func (c *Command) Directives(res domain.Resources) []string {
	var lines []string
	if res.Account != "" {
		lines = append(lines, fmt.Sprintf("%s --account=%s", c.prefix, res.Account))
	}
	for _, k := range res.Keys() {
		switch v := res.Fields[k].(type) {
		case bool:
			if v {
				lines = append(lines, fmt.Sprintf("%s --%s", c.prefix, k))
			}
		default:
			lines = append(lines, fmt.Sprintf("%s --%s=%v", c.prefix, k, v))
		}
	}
	return lines
}

// Submit runs the submit command with the script path appended; its trimmed
// standard output is the job id.
func (c *Command) Submit(ctx context.Context, script string) (Job, error) {
	job := Job{Scheduler: c.name, Script: script, SubmittedAt: time.Now()}
	argv := append(append([]string(nil), c.submit[1:]...), script)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.submit[0], argv...)
	cmd.Dir = filepath.Dir(script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		job.Output = stderr.String()
		if exitErr, ok := err.(*exec.ExitError); ok {
			job.ExitCode = exitErr.ExitCode()
		}
		return job, fmt.Errorf("submit %s: %w: %s", script, err, strings.TrimSpace(stderr.String()))
	}
	job.Output = stdout.String()
	job.ID = strings.TrimSpace(stdout.String())
	return job, nil
}
