// Package execution launches a driver's executable, either directly as a
// subprocess of uwflow or through a batch script handed to a scheduler.
//
// Both modes build the run line from the same Command so the two never
// disagree about what is run.
package execution

import (
	"strings"

	"github.com/uwflow/uwflow/internal/batch"
)

// EnvVar is one exported environment variable.
type EnvVar struct {
	Key   string
	Value string
}

func (e EnvVar) String() string { return e.Key + "=" + e.Value }

// Command describes one launch of a driver executable.
type Command struct {
	Run     string   // driver run command, e.g. "orog < INPS"
	MPICmd  string   // optional launcher, e.g. "srun"
	MPIArgs []string // arguments to the launcher
	Env     []EnvVar // exported in the given order
	EnvCmds []string // shell lines run before the command, e.g. "module load x"
}

// Line returns the run line: "[mpicmd mpiargs...] run".
func (c Command) Line() string {
	parts := make([]string, 0, 2+len(c.MPIArgs))
	if c.MPICmd != "" {
		parts = append(parts, c.MPICmd)
		parts = append(parts, c.MPIArgs...)
	}
	parts = append(parts, c.Run)
	return strings.Join(parts, " ")
}

// EnvPairs renders the environment as KEY=VALUE strings.
func (c Command) EnvPairs() []string {
	out := make([]string, len(c.Env))
	for i, e := range c.Env {
		out[i] = e.String()
	}
	return out
}

// EnvString joins EnvPairs with delim.
func (c Command) EnvString(delim string) string {
	return strings.Join(c.EnvPairs(), delim)
}

// Shell returns the shell text a launch runs: the export line, the
// environment commands, then the run line. A direct launch hands exactly this
// text to /bin/sh -c and a dry run reports it unchanged; the batch script body
// is built from the same parts.
func (c Command) Shell() string {
	var lines []string
	if line := batch.ExportLine(c.EnvPairs()); line != "" {
		lines = append(lines, line)
	}
	lines = append(lines, c.EnvCmds...)
	lines = append(lines, c.Line())
	return strings.Join(lines, "\n")
}
