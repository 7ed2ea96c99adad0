// Package mount detects mass-storage volumes appearing on the host.
package mount

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// Drive is the root directory of a mounted volume, e.g. `E:\` or /media/me/CAMERA.
type Drive string

func (d Drive) String() string { return string(d) }

type Lister interface {
	List(ctx context.Context) ([]Drive, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Drive, error)

func (f ListerFunc) List(ctx context.Context) ([]Drive, error) { return f(ctx) }

// Watcher remembers which drives it has seen and reports the new ones.
type Watcher struct {
	lister Lister
	logger *slog.Logger

	mu    sync.Mutex
	known []Drive

	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher snapshots the drives already mounted; those are never reported.
func NewWatcher(ctx context.Context, lister Lister, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	initial, err := lister.List(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("initial drives detected", "drives", initial)
	return &Watcher{
		lister: lister,
		logger: logger,
		known:  slices.Clone(initial),
		stop:   make(chan struct{}),
	}, nil
}

// Known returns the drives currently considered mounted.
func (w *Watcher) Known() []Drive {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.known)
}

// Detect lists drives once, calls fn for each drive not seen before (in
// listing order) and forgets drives that are gone, so a re-inserted volume is
// reported again.
func (w *Watcher) Detect(ctx context.Context, fn func(context.Context, Drive)) error {
	current, err := w.lister.List(ctx)
	if err != nil {
		return err
	}

	var added []Drive
	w.mu.Lock()
	for _, d := range current {
		if !slices.Contains(w.known, d) {
			w.known = append(w.known, d)
			added = append(added, d)
		}
	}
	w.known = slices.DeleteFunc(w.known, func(d Drive) bool {
		if slices.Contains(current, d) {
			return false
		}
		w.logger.Info("drive removed", "drive", d)
		return true
	})
	w.mu.Unlock()

	for _, d := range added {
		w.logger.Info("new drive detected", "drive", d)
		if fn != nil {
			fn(ctx, d)
		}
	}
	return nil
}

// Scan runs Detect every interval until ctx is done or Stop is called.
// Listing errors are logged and the loop continues.
func (w *Watcher) Scan(ctx context.Context, interval time.Duration, fn func(context.Context, Drive)) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := w.Detect(ctx, fn); err != nil {
			w.logger.Error("drive scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("stopped scanning for new drives")
			return ctx.Err()
		case <-w.stop:
			w.logger.Info("stopped scanning for new drives")
			return nil
		case <-t.C:
		}
	}
}

// Stop ends a running Scan. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
