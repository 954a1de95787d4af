// Package batch holds the batch-script model handed to scheduler clients.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uwflow/uwflow/internal/domain"
)

// Shebang is the interpreter line every script starts with.
const Shebang = "#!/bin/bash"

// Script is an ordered list of lines: directives, an environment export
// line, then the run command. It is append-only and becomes immutable once
// frozen for submission.
type Script struct {
	lines  []string
	frozen bool
}

// New returns a script holding the shebang line.
func New() *Script {
	return &Script{lines: []string{Shebang}}
}

// Append adds lines. Multi-line strings are split. Appending to a frozen
// script returns domain.ErrScriptFrozen.
func (s *Script) Append(lines ...string) error {
	if s.frozen {
		return domain.ErrScriptFrozen
	}
	for _, l := range lines {
		s.lines = append(s.lines, strings.Split(l, "\n")...)
	}
	return nil
}

// Freeze marks the script as submitted.
func (s *Script) Freeze() { s.frozen = true }

// Frozen reports whether the script has been submitted.
func (s *Script) Frozen() bool { return s.frozen }

// Lines returns a copy of the script lines.
func (s *Script) Lines() []string {
	return append([]string(nil), s.lines...)
}

// String joins the lines with a trailing newline.
func (s *Script) String() string {
	return strings.Join(s.lines, "\n") + "\n"
}

// Write stores the script at path with execute permission and freezes it.
func (s *Script) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.String()), 0o755); err != nil {
		return fmt.Errorf("write batch script: %w", err)
	}
	s.Freeze()
	return nil
}

// ExportLine renders environment variables as one shell export line with
// pairs in the given order.
func ExportLine(pairs []string) string {
	if len(pairs) == 0 {
		return ""
	}
	return "export " + strings.Join(pairs, " ")
}
