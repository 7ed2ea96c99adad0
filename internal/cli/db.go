package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fusbsync/internal/store"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Sync history database",
	}
	cmd.AddCommand(dbInitCmd())
	return cmd
}

// dbInitCmd applies the schema bundled in the binary, or a file passed with
// --schema, so it works from an installed exe as well as from a checkout.
func dbInitCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the fusb.sync_runs history table in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := dsnOrErr()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			st, err := store.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			if schemaPath == "" {
				err = st.Migrate(ctx)
			} else {
				err = applySchemaFile(ctx, st, schemaPath)
			}
			if err != nil {
				return err
			}
			fmt.Println("ok: fusb.sync_runs ready")
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "SQL file to apply instead of the bundled schema")
	return cmd
}

func applySchemaFile(ctx context.Context, st *store.Store, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if err := st.ExecSQL(ctx, string(b)); err != nil {
		return fmt.Errorf("apply %s: %w", path, err)
	}
	return nil
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent syncs recorded in PostgreSQL (fusb.sync_runs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := dsnOrErr()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			st, err := store.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format(time.DateTime)
				}
				fmt.Printf("%s  %-7s  %s -> %s  copied=%d deleted=%d  %s .. %s\n",
					r.RunID, r.Status, r.Source, r.Target, r.Copied, r.Deleted,
					r.StartedAt.Format(time.DateTime), finished)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
