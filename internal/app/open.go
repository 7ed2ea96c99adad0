package app

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// opener builds the command that shows a path in the desktop environment.
func opener(path string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", path)
	case "darwin":
		return exec.Command("open", path)
	default:
		return exec.Command("xdg-open", path)
	}
}

// openPath launches the opener and returns without waiting: the file manager
// outlives the request that asked for it.
func openPath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := opener(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	// explorer exits non-zero even on success
	go func() { _ = cmd.Wait() }()
	return nil
}
