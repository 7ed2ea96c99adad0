// Package packager builds the single-file fusb_sync executable. Icons and
// other data files are already inside the binary through go:embed, and the
// version resource is linked from the .syso written by package properties.
package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"fusbsync/internal/properties"
)

const (
	DefaultName  = "fusb_sync"
	DefaultEntry = "./cmd/fusb_sync"
)

type Options struct {
	Name   string
	Entry  string
	GOOS   string
	GOARCH string
	// Windowed links a GUI-subsystem binary (no console window on Windows).
	Windowed bool
	Version  string
	Commit   string
	Date     string
	Env      []string
	Stdout   io.Writer
	Stderr   io.Writer
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Entry == "" {
		o.Entry = DefaultEntry
	}
	if o.GOOS == "" {
		o.GOOS = "windows"
	}
	if o.GOARCH == "" {
		o.GOARCH = "amd64"
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Commit == "" {
		o.Commit = "none"
	}
	if o.Date == "" {
		o.Date = time.Now().UTC().Format(time.RFC3339)
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Output returns the executable file name for the target OS.
func (o Options) Output() string {
	o.defaults()
	if o.GOOS == "windows" && !strings.HasSuffix(o.Name, ".exe") {
		return o.Name + ".exe"
	}
	return o.Name
}

// LDFlags returns the linker flags stamping build info into the binary.
func (o Options) LDFlags() string {
	o.defaults()
	flags := []string{"-s", "-w"}
	if o.Windowed && o.GOOS == "windows" {
		flags = append(flags, "-H", "windowsgui")
	}
	const pkg = "fusbsync/internal/buildinfo"
	flags = append(flags,
		"-X", pkg+".Version="+o.Version,
		"-X", pkg+".Commit="+o.Commit,
		"-X", pkg+".Date="+o.Date,
	)
	return strings.Join(flags, " ")
}

// Command builds the go build invocation without starting it.
func Command(ctx context.Context, opts Options) *exec.Cmd {
	opts.defaults()
	cmd := exec.CommandContext(ctx, "go", "build",
		"-trimpath",
		"-ldflags", opts.LDFlags(),
		"-o", opts.Output(),
		opts.Entry,
	)
	cmd.Env = append(os.Environ(), "GOOS="+opts.GOOS, "GOARCH="+opts.GOARCH, "CGO_ENABLED=0")
	cmd.Env = append(cmd.Env, opts.Env...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	return cmd
}

// Run builds the executable and returns its path.
func Run(ctx context.Context, opts Options) (string, error) {
	cmd := Command(ctx, opts)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("go build %s: %w", opts.Output(), err)
	}
	return opts.Output(), nil
}

// Release runs the two build steps in order, generating the version resource
// and then packaging, and stops at the first failure.
func Release(ctx context.Context, props properties.Options, opts Options) (string, error) {
	res, err := properties.Generate(ctx, props)
	if err != nil {
		return "", fmt.Errorf("properties: %w", err)
	}
	fmt.Fprintf(stderrOf(opts), "version resource %s (%d.%d.%d.%d)\n", res.Version,
		res.Parsed.Major, res.Parsed.Minor, res.Parsed.Patch, res.Parsed.Build)
	if opts.Version == "" {
		opts.Version = res.Version
	}
	out, err := Run(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("package: %w", err)
	}
	return out, nil
}

func stderrOf(o Options) io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}
