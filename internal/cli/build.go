package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fusbsync/internal/packager"
	"fusbsync/internal/properties"
)

type buildFlags struct {
	props   properties.Options
	pkg     packager.Options
	console bool
}

func (f *buildFlags) bindProperties(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.props.PropsPath, "props", properties.DefaultPath, "YAML file with product metadata")
	cmd.Flags().StringVar(&f.props.Version, "version", "", "version to stamp (default: from git tags)")
	cmd.Flags().StringVar(&f.props.JSONPath, "out", "versioninfo.json", "versioninfo.json output path")
	cmd.Flags().StringVar(&f.props.SysoPath, "syso", "", "resource object output (default cmd/fusb_sync/resource_windows_<arch>.syso)")
	cmd.Flags().StringVar(&f.props.Arch, "arch", "amd64", "resource architecture: amd64|386|arm|arm64")
}

func (f *buildFlags) bindPackage(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pkg.Name, "name", packager.DefaultName, "output executable name")
	cmd.Flags().StringVar(&f.pkg.Entry, "entry", packager.DefaultEntry, "main package to build")
	cmd.Flags().StringVar(&f.pkg.GOOS, "goos", "windows", "target OS")
	cmd.Flags().StringVar(&f.pkg.GOARCH, "goarch", "amd64", "target architecture")
	cmd.Flags().StringVar(&f.pkg.Commit, "commit", "", "commit id to stamp")
	cmd.Flags().BoolVar(&f.console, "console", false, "keep the console window (no -H windowsgui)")
}

func (f *buildFlags) sysoDefault() {
	if f.props.SysoPath == "" {
		f.props.SysoPath = filepath.Join("cmd", "fusb_sync", fmt.Sprintf("resource_windows_%s.syso", f.props.Arch))
	}
}

func propertiesCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Generate the Windows version resource (versioninfo.json + .syso)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.sysoDefault()
			res, err := properties.Generate(context.Background(), f.props)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Generated Windows resource with version: %s (%d.%d.%d.%d) -> %s\n",
				res.Version, res.Parsed.Major, res.Parsed.Minor, res.Parsed.Patch, res.Parsed.Build, res.Syso)
			return nil
		},
	}
	f.bindProperties(cmd)
	return cmd
}

func packageCmd() *cobra.Command {
	var f buildFlags
	var version string
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build the single-file windowed fusb_sync executable",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.pkg.Windowed = !f.console
			f.pkg.Version = version
			out, err := packager.Run(context.Background(), f.pkg)
			if err != nil {
				return err
			}
			fmt.Println("ok:", out)
			return nil
		},
	}
	f.bindPackage(cmd)
	cmd.Flags().StringVar(&version, "version", "", "version to stamp")
	return cmd
}

func releaseCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Generate the version resource, then package the executable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("arch") {
				f.props.Arch = f.pkg.GOARCH
			}
			f.sysoDefault()
			f.pkg.Windowed = !f.console
			f.pkg.Version = f.props.Version
			out, err := packager.Release(context.Background(), f.props, f.pkg)
			if err != nil {
				return err
			}
			fmt.Println("ok:", out)
			return nil
		},
	}
	f.bindProperties(cmd)
	f.bindPackage(cmd)
	return cmd
}
