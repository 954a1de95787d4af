// Package rundir creates and resets model run directories.
//
// A run directory holds two canonical subdirectories, INPUT and RESTART.
// When the directory already exists a conflict policy decides what happens:
// delete it, move it aside, or stop the whole program.
package rundir

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/uwflow/uwflow/internal/domain"
)

// Canonical subdirectory names.
const (
	InputDir   = "INPUT"
	RestartDir = "RESTART"
)

// Policy governs what Provision does with a pre-existing directory.
type Policy string

const (
	PolicyDelete Policy = "delete"
	PolicyRename Policy = "rename"
	PolicyQuit   Policy = "quit"
)

// ParsePolicy validates a conflict policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDelete, PolicyRename, PolicyQuit:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q (want delete, rename or quit)", domain.ErrBadPolicy, s)
	}
}

// exit terminates the process for PolicyQuit. Tests replace it.
var exit = os.Exit

// now is the clock used for rename suffixes.
var now = time.Now

// Provision prepares path for a fresh run according to policy and creates
// the canonical layout. With PolicyQuit and an existing path the process
// exits with status 1 and nothing is touched.
func Provision(path string, policy Policy, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return err
	}

	exists, err := pathExists(path)
	if err != nil {
		return err
	}
	if exists {
		switch policy {
		case PolicyQuit:
			logger.Error("Run directory exists and conflict policy is quit", "path", path)
			exit(1)
			return nil
		case PolicyDelete:
			logger.Info("Removing existing run directory", "path", path)
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		case PolicyRename:
			dest, err := renameTarget(path)
			if err != nil {
				return err
			}
			logger.Info("Moving existing run directory aside", "path", path, "to", dest)
			if err := os.Rename(path, dest); err != nil {
				return fmt.Errorf("rename %s: %w", path, err)
			}
		}
	}
	return Create(path, logger)
}

// Create makes path and its INPUT and RESTART subdirectories, then verifies
// that both exist.
func Create(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range Subdirs(path) {
		logger.Info("Creating directory", "path", sub)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}
	for _, sub := range Subdirs(path) {
		fi, err := os.Stat(sub)
		if err != nil {
			return fmt.Errorf("verify %s: %w", sub, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("verify %s: not a directory", sub)
		}
	}
	return nil
}

// Subdirs returns the canonical subdirectory paths under root.
func Subdirs(root string) []string {
	return []string{filepath.Join(root, InputDir), filepath.Join(root, RestartDir)}
}

// renameTarget picks a sibling name that does not yet exist, based on the
// current time.
func renameTarget(path string) (string, error) {
	clean := filepath.Clean(path)
	base := fmt.Sprintf("%s_%s", clean, now().Format("20060102_150405"))
	candidate := base
	for i := 1; ; i++ {
		exists, err := pathExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
