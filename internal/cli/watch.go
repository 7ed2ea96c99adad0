package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fusbsync/internal/control"
	"fusbsync/internal/mount"
)

func watchCmd() *cobra.Command {
	var interval time.Duration
	var controlAddr string
	var interactive, yes bool
	var cf copyFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for new drives and sync each one as it appears",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			if interval == 0 {
				if interval, err = s.cfg.SyncInterval(); err != nil {
					return err
				}
			}
			s.logger.Info("watching for drives", "settings", s.cfg.Path(), "local_folder", s.cfg.LocalFolder(), "interval", interval)

			w, err := mount.NewWatcher(ctx, mount.SystemLister{Roots: s.cfg.MountRoots()}, s.logger)
			if err != nil {
				return err
			}
			sy := s.syncer(prompter(interactive, yes), cf)

			if controlAddr != "" {
				srv := control.NewServer(control.ServerOptions{Syncer: sy, Watcher: w, Quit: cancel})
				go func() {
					if err := srv.ListenAndServe(ctx, controlAddr, s.logger); err != nil {
						s.logger.Error("control endpoint failed", "error", err)
					}
				}()
			}

			err = w.Scan(ctx, interval, sy.OnDrive)
			if errors.Is(err, context.Canceled) {
				s.logger.Info("quitting")
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval (0 uses sync_interval from settings)")
	cmd.Flags().StringVar(&controlAddr, "control-addr", control.DefaultAddr, "loopback address of the control endpoint (empty to disable)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "ask for the target folder and purge confirmation on the terminal")
	cmd.Flags().BoolVar(&yes, "yes", false, "non-interactive: empty the source after copying when purge_source=ask")
	cf.bind(cmd)
	return cmd
}
