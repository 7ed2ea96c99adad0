// fusb_sync copies the photo folder of newly mounted USB drives into a local
// folder. Launched without arguments it runs the watch daemon.
package main

import (
	"fmt"
	"os"

	"fusbsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
