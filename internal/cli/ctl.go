package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fusbsync/internal/control"
)

func ctlCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Talk to a running watch process over its control endpoint",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", control.DefaultAddr, "control endpoint address")

	client := func() *control.Client { return control.NewClient(addr) }

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show server info and known drives",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var info map[string]any
			if err := client().Call(ctx, "initialize", nil, &info); err != nil {
				return err
			}
			drives, err := client().Drives(ctx)
			if err != nil {
				return err
			}
			info["drives"] = drives
			return printJSON(info)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync <drive>",
		Short: "Ask the running process to sync a drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := client().Sync(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "Open the target folder from the running process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client().Call(ctx, "folder/open", nil, nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "quit",
		Short: "Stop the running process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client().Quit(ctx); err != nil {
				return err
			}
			fmt.Println("ok: quit requested")
			return nil
		},
	})
	return cmd
}
