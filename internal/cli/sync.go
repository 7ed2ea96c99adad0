package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"fusbsync/internal/dirsync"
	"fusbsync/internal/mount"
)

func syncCmd() *cobra.Command {
	var target string
	var interactive, yes bool
	var cf copyFlags
	cmd := &cobra.Command{
		Use:   "sync <drive>",
		Short: "Sync one mounted drive now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			if target != "" {
				if err := s.cfg.SetLocalFolder(target); err != nil {
					return err
				}
			}
			sy := s.syncer(prompter(interactive, yes), cf)
			drive := mount.Drive(args[0])
			if interactive {
				rep, err := sy.HandleDrive(ctx, drive)
				if err != nil || rep == nil {
					return err
				}
				return printJSON(rep)
			}
			rep, err := sy.SyncDrive(ctx, drive)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "local folder to sync into (saved as local_folder)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "ask for the target folder and purge confirmation")
	cmd.Flags().BoolVar(&yes, "yes", false, "non-interactive: empty the source after copying when purge_source=ask")
	cf.bind(cmd)
	return cmd
}

func drivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List the drives currently mounted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			drives, err := mount.SystemLister{Roots: s.cfg.MountRoots()}.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(drives)
		},
	}
	return cmd
}

func purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <dir>",
		Short: "Delete every file and subfolder under a directory, keeping the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to empty %s without --yes", args[0])
			}
			n, err := dirsync.EmptyTree(args[0])
			fmt.Printf("%d file(s) deleted\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
