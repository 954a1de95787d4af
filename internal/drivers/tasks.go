package drivers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/uwflow/uwflow/internal/asset"
	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/taskgraph"
)

// existing is the external check on a user-supplied path. Every task that
// depends on the same path shares its name, so the engine checks it once.
func existing(path string) *taskgraph.Spec {
	return taskgraph.External("Existing path "+path, asset.Path(path))
}

// filecopy copies src to dst once src exists.
func filecopy(logger *slog.Logger, src, dst string) *taskgraph.Spec {
	return taskgraph.Atomic(
		fmt.Sprintf("Copy %s -> %s", src, dst),
		asset.File(dst),
		func(context.Context) error { return copyFile(src, dst) },
		existing(src),
	).WithPreview(func(context.Context) {
		logger.Info("Would copy", "src", src, "dst", dst)
	})
}

// symlink links link to target once target exists.
func symlink(logger *slog.Logger, target, link string) *taskgraph.Spec {
	return taskgraph.Atomic(
		fmt.Sprintf("Link %s -> %s", link, target),
		asset.Symlink(link, target),
		func(context.Context) error {
			if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
				return fmt.Errorf("create link dir: %w", err)
			}
			if _, err := os.Lstat(link); err == nil {
				if err := os.Remove(link); err != nil {
					return fmt.Errorf("replace link: %w", err)
				}
			}
			return os.Symlink(target, link)
		},
		existing(target),
	).WithPreview(func(context.Context) {
		logger.Info("Would link", "link", link, "target", target)
	})
}

// writeFile writes content to path. The content is rendered from
// configuration when the task is built, so a bad config fails before any
// side effect.
func writeFile(logger *slog.Logger, name, path, content string, requires ...*taskgraph.Spec) *taskgraph.Spec {
	return taskgraph.Atomic(
		name,
		asset.File(path),
		func(context.Context) error {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			return nil
		},
		requires...,
	).WithPreview(func(context.Context) {
		logger.Info("Would write", "path", path, "content", content)
	})
}

// requirementTask checks one driver requirement.
func requirementTask(r domain.Requirement) *taskgraph.Spec {
	if r.Kind == domain.RequireExecutable {
		return taskgraph.External("Executable "+r.Path, asset.Executable(r.Path))
	}
	return existing(r.Path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
