package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fusbsync/internal/app"
	"fusbsync/internal/config"
	"fusbsync/internal/dirsync"
	"fusbsync/internal/logging"
	"fusbsync/internal/store"
)

type rootFlags struct {
	Config   string
	DSN      string
	LogLevel string
	LogFile  string
}

var rf rootFlags

func Execute() error {
	rootCmd := &cobra.Command{
		Use:           "fusb_sync",
		Short:         "Copy the photo folder of newly mounted USB drives into a local folder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defConfig := os.Getenv("FUSB_SYNC_CONFIG")
	if defConfig == "" {
		defConfig = config.DefaultPath
	}
	rootCmd.PersistentFlags().StringVar(&rf.Config, "config", defConfig, "INI settings file (defaults to FUSB_SYNC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&rf.DSN, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN for sync history (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&rf.LogLevel, "log-level", "info", "console log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&rf.LogFile, "log-file", "", "also write debug logs to this file")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(drivesCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(ctlCmd())
	rootCmd.AddCommand(propertiesCmd())
	rootCmd.AddCommand(packageCmd())
	rootCmd.AddCommand(releaseCmd())
	rootCmd.AddCommand(versionCmd())

	// a bare launch (double click on the exe) starts the daemon
	if len(os.Args) < 2 {
		rootCmd.SetArgs([]string{"watch"})
	}
	return rootCmd.Execute()
}

func dsnOrErr() (string, error) {
	if rf.DSN == "" {
		return "", fmt.Errorf("missing --dsn (or set DATABASE_URL)")
	}
	return rf.DSN, nil
}

// session bundles what most commands need: logger, settings and, when a DSN
// is configured, the history store.
type session struct {
	logger  *slog.Logger
	cfg     *config.Config
	store   *store.Store
	closers []io.Closer
}

func openSession(ctx context.Context, withStore bool) (*session, error) {
	level, err := logging.ParseLevel(rf.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{Level: level, File: rf.LogFile})
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger, closers: []io.Closer{closer}}

	s.cfg, err = config.Load(rf.Config, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	if withStore && rf.DSN != "" {
		st, err := store.Open(ctx, rf.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("history store: %w", err)
		}
		s.store = st
	}
	return s, nil
}

func (s *session) recorder() app.Recorder {
	if s.store == nil {
		return nil
	}
	return s.store
}

// copyFlags are the dirsync knobs shared by sync and watch.
type copyFlags struct {
	workers  int
	checksum bool
	dryRun   bool
}

func (f *copyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.workers, "workers", dirsync.DefaultWorkers, "files copied in parallel")
	cmd.Flags().BoolVar(&f.checksum, "checksum", false, "record the sha256 of every copied file")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "only report what would be copied")
}

func (s *session) syncer(p app.Prompter, f copyFlags) *app.Syncer {
	return app.New(app.Options{
		Config:   s.cfg,
		Prompter: p,
		Recorder: s.recorder(),
		Logger:   s.logger,
		Workers:  f.workers,
		Checksum: f.checksum,
		DryRun:   f.dryRun,
	})
}

func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	for _, c := range s.closers {
		_ = c.Close()
	}
}

func prompter(interactive, yes bool) app.Prompter {
	if interactive {
		return app.NewConsolePrompter(os.Stdin, os.Stdout)
	}
	return app.AutoPrompter{Purge: yes, Out: os.Stdout}
}
