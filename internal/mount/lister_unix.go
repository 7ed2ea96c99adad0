//go:build !windows

package mount

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
)

// SystemLister reports every directory directly under one of Roots.
type SystemLister struct {
	Roots []string
}

func (l SystemLister) List(ctx context.Context) ([]Drive, error) {
	roots := l.Roots
	if len(roots) == 0 {
		roots = DefaultRoots()
	}
	var out []Drive
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			p := filepath.Join(root, e.Name())
			if isDir(p) {
				out = append(out, Drive(p))
			}
		}
	}
	return out, nil
}

// DefaultRoots returns where the desktop automounter places removable media.
func DefaultRoots() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/Volumes"}
	}
	name := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		return []string{"/media", "/run/media"}
	}
	return []string{filepath.Join("/media", name), filepath.Join("/run/media", name)}
}
