// Package app reacts to new drives: it asks for a target folder, copies the
// drive's photo folder there and optionally empties the source afterwards.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fusbsync/internal/config"
	"fusbsync/internal/dirsync"
	"fusbsync/internal/mount"
	"fusbsync/internal/store"
)

// Recorder keeps a history of syncs. *store.Store implements it.
type Recorder interface {
	CreateRun(ctx context.Context, r store.SyncRun) (string, error)
	FinishRun(ctx context.Context, runID string, status string, copied, deleted int, bytes int64, resultJSON []byte) error
}

var (
	ErrNoSource      = errors.New("drive has no source folder")
	ErrInvalidTarget = errors.New("target folder is not a directory")
)

type Options struct {
	Config   *config.Config
	Prompter Prompter
	Recorder Recorder
	Logger   *slog.Logger
	Workers  int
	Checksum bool
	// DryRun lists what would be copied; nothing is written, purged or recorded.
	DryRun bool
}

type Syncer struct {
	cfg      *config.Config
	prompter Prompter
	recorder Recorder
	logger   *slog.Logger
	workers  int
	checksum bool
	dryRun   bool
	host     string

	// one drive at a time, whether from the watcher or the control endpoint
	mu sync.Mutex

	sleep func(ctx context.Context, d time.Duration) error
}

// Report summarises one HandleDrive/SyncDrive call.
type Report struct {
	Drive   string         `json:"drive"`
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	Result  dirsync.Result `json:"result"`
	Deleted int            `json:"deleted"`
	RunID   string         `json:"run_id,omitempty"`
	DryRun  bool           `json:"dry_run,omitempty"`
}

func New(opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Prompter
	if p == nil {
		p = AutoPrompter{}
	}
	host, _ := os.Hostname()
	return &Syncer{
		cfg:      opts.Config,
		prompter: p,
		recorder: opts.Recorder,
		logger:   logger,
		workers:  opts.Workers,
		checksum: opts.Checksum,
		dryRun:   opts.DryRun,
		host:     host,
		sleep:    sleepCtx,
	}
}

// Config exposes the settings the syncer works from.
func (s *Syncer) Config() *config.Config { return s.cfg }

// OnDrive adapts HandleDrive to a mount.Watcher callback.
func (s *Syncer) OnDrive(ctx context.Context, d mount.Drive) {
	_, err := s.HandleDrive(ctx, d)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrNoSource):
		// not a camera card; syncDrive logged the skip
	default:
		s.logger.Error("drive sync failed", "drive", d, "error", err)
		s.prompter.Error(ctx, fmt.Sprintf("sync of %s failed: %v", d, err))
	}
}

// HandleDrive waits for the drive to settle, asks for the target folder and
// syncs. A nil report with a nil error means the user cancelled. An invalid
// folder is asked for again, unless the prompter repeats the same answer.
func (s *Syncer) HandleDrive(ctx context.Context, d mount.Drive) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay, err := s.cfg.SettleDelay()
	if err != nil {
		return nil, err
	}
	rejected := ""
	for {
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		current := s.cfg.LocalFolder()
		answer, err := s.prompter.TargetFolder(ctx, current)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			s.logger.Info("sync cancelled, no target folder", "drive", d)
			return nil, nil
		}
		if fi, err := os.Stat(answer); err != nil || !fi.IsDir() {
			if answer == rejected {
				return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, answer)
			}
			rejected = answer
			s.logger.Warn("selected path is not a valid directory", "path", answer)
			s.prompter.Error(ctx, "The selected path is not a valid directory. Please select an existing folder.")
			// ask again straight away
			delay = 0
			continue
		}
		s.logger.Info("selected local folder", "path", answer)
		if answer != current {
			if err := s.cfg.SetLocalFolder(answer); err != nil {
				return nil, err
			}
			s.logger.Info("local folder updated", "path", answer)
		}
		return s.syncDrive(ctx, d)
	}
}

// SyncDrive copies <drive>/<remote_path> into the local folder, records the
// run and applies the purge policy. It waits for any sync already running.
func (s *Syncer) SyncDrive(ctx context.Context, d mount.Drive) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncDrive(ctx, d)
}

func (s *Syncer) syncDrive(ctx context.Context, d mount.Drive) (*Report, error) {
	target := s.cfg.LocalFolder()
	if target == "" {
		return nil, errors.New("local_folder is not set")
	}
	source := filepath.Join(string(d), filepath.FromSlash(s.cfg.RemotePath()))
	rep := &Report{Drive: string(d), Source: source, Target: target}

	if fi, err := os.Stat(source); err != nil || !fi.IsDir() {
		s.logger.Info("drive has no source folder, skipping", "drive", d, "source", source)
		return rep, fmt.Errorf("%w: %s", ErrNoSource, source)
	}
	purge, err := s.cfg.PurgeSource()
	if err != nil {
		return nil, err
	}

	if s.dryRun {
		return s.dryRunDrive(ctx, rep)
	}

	s.logger.Info("synchronizing drive", "drive", d, "source", source, "target", target)
	runID := s.startRun(ctx, rep)
	rep.RunID = runID

	res, err := dirsync.Sync(ctx, source, target, dirsync.Options{
		Exclude:  s.cfg.Exclude(),
		Workers:  s.workers,
		Checksum: s.checksum,
	})
	rep.Result = res
	if err != nil {
		s.finishRun(ctx, rep, err)
		return rep, err
	}
	s.logger.Info("sync finished", "drive", d, "copied", len(res.Copied), "skipped", res.Skipped, "bytes", res.Bytes)

	doPurge := false
	switch purge {
	case config.PurgeAlways:
		doPurge = true
	case config.PurgeAsk:
		doPurge, err = s.prompter.ConfirmPurge(ctx, len(res.Copied))
		if err != nil {
			s.finishRun(ctx, rep, err)
			return rep, err
		}
	}
	if doPurge {
		s.logger.Info("deleting source files and folders", "source", source)
		n, err := dirsync.EmptyTree(source)
		rep.Deleted = n
		if err != nil {
			s.finishRun(ctx, rep, err)
			return rep, fmt.Errorf("empty source: %w", err)
		}
		s.prompter.Notify(ctx, fmt.Sprintf("%d file(s) deleted from the source.", n))
	} else {
		s.prompter.Notify(ctx, fmt.Sprintf("Transfer finished (%d file(s) copied).", len(res.Copied)))
	}
	s.finishRun(ctx, rep, nil)
	return rep, nil
}

func (s *Syncer) dryRunDrive(ctx context.Context, rep *Report) (*Report, error) {
	res, err := dirsync.Sync(ctx, rep.Source, rep.Target, dirsync.Options{
		Exclude: s.cfg.Exclude(),
		DryRun:  true,
	})
	rep.Result = res
	rep.DryRun = true
	if err != nil {
		return rep, err
	}
	s.logger.Info("dry run", "drive", rep.Drive, "would_copy", len(res.Copied), "bytes", res.Bytes)
	s.prompter.Notify(ctx, fmt.Sprintf("Dry run: %d file(s) would be copied.", len(res.Copied)))
	return rep, nil
}

// OpenFolder shows the local folder in the platform file manager.
func (s *Syncer) OpenFolder(ctx context.Context) error {
	dir := s.cfg.LocalFolder()
	if dir == "" {
		s.logger.Warn("local folder is not set, cannot open it")
		return nil
	}
	return openPath(ctx, dir)
}

// OpenSettings opens the settings file with the default editor.
func (s *Syncer) OpenSettings(ctx context.Context) error {
	s.logger.Info("open settings", "path", s.cfg.Path())
	if _, err := os.Stat(s.cfg.Path()); errors.Is(err, os.ErrNotExist) {
		if err := s.cfg.Save(); err != nil {
			return err
		}
	}
	return openPath(ctx, s.cfg.Path())
}

// history failures never abort a sync
func (s *Syncer) startRun(ctx context.Context, rep *Report) string {
	if s.recorder == nil {
		return ""
	}
	id, err := s.recorder.CreateRun(ctx, store.SyncRun{
		Host:   s.host,
		Drive:  rep.Drive,
		Source: rep.Source,
		Target: rep.Target,
		Status: store.StatusRunning,
	})
	if err != nil {
		s.logger.Warn("record sync start", "error", err)
		return ""
	}
	return id
}

func (s *Syncer) finishRun(ctx context.Context, rep *Report, runErr error) {
	if s.recorder == nil || rep.RunID == "" {
		return
	}
	status := store.StatusOK
	out := map[string]any{"result": rep.Result}
	if runErr != nil {
		status = store.StatusFailed
		out["error"] = runErr.Error()
	}
	b, _ := json.Marshal(out)
	// record even when the sync itself was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := s.recorder.FinishRun(ctx, rep.RunID, status, len(rep.Result.Copied), rep.Deleted, rep.Result.Bytes, b); err != nil {
		s.logger.Warn("record sync result", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
