package cli

import (
	"github.com/spf13/cobra"
)

func openCmd() *cobra.Command {
	var settings bool
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the target folder (or the settings file) on the desktop",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			sy := s.syncer(nil, copyFlags{})
			if settings {
				return sy.OpenSettings(cmd.Context())
			}
			return sy.OpenFolder(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&settings, "settings", false, "open the settings file instead")
	return cmd
}
