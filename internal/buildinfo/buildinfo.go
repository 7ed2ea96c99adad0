package buildinfo

import "fmt"

// Build information set via -ldflags -X by the package command.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("fusb_sync version %s, commit %s, built at %s", Version, Commit, Date)
}
