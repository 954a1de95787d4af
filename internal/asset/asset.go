// Package asset describes the observable artifacts whose existence defines
// task completion.
package asset

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Asset is a named, checkable artifact. Values are immutable once built.
type Asset struct {
	name  string
	ref   string
	ready func() bool
}

// New builds an asset from an arbitrary readiness predicate.
func New(name, ref string, ready func() bool) *Asset {
	return &Asset{name: name, ref: ref, ready: ready}
}

// Name returns the asset's display name.
func (a *Asset) Name() string { return a.name }

// Ref returns the locator of the asset, typically a path.
func (a *Asset) Ref() string { return a.ref }

// Ready reports whether the artifact currently exists.
func (a *Asset) Ready() bool {
	if a == nil || a.ready == nil {
		return false
	}
	return a.ready()
}

// File is ready when path names an existing regular file.
func File(path string) *Asset {
	return New(path, path, func() bool {
		fi, err := os.Stat(path)
		return err == nil && fi.Mode().IsRegular()
	})
}

// Dir is ready when path names an existing directory.
func Dir(path string) *Asset {
	return New(path, path, func() bool { return isDir(path) })
}

// Dirs is ready when every path names an existing directory.
func Dirs(name string, paths ...string) *Asset {
	ref := name
	if len(paths) > 0 {
		ref = paths[0]
	}
	return New(name, ref, func() bool {
		for _, p := range paths {
			if !isDir(p) {
				return false
			}
		}
		return true
	})
}

// Path is ready when anything exists at path.
func Path(path string) *Asset {
	return New(path, path, func() bool {
		_, err := os.Stat(path)
		return err == nil
	})
}

// Executable is ready when name resolves to an executable file, either as a
// path or through $PATH.
func Executable(name string) *Asset {
	return New(name, name, func() bool {
		_, err := exec.LookPath(name)
		return err == nil
	})
}

// Symlink is ready when link is a symbolic link resolving to target.
func Symlink(link, target string) *Asset {
	return New(link, link, func() bool {
		fi, err := os.Lstat(link)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			return false
		}
		dest, err := os.Readlink(link)
		if err != nil {
			return false
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(link), dest)
		}
		return filepath.Clean(dest) == filepath.Clean(target)
	})
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
