// Package assets holds the files bundled into the fusb_sync binary.
package assets

import _ "embed"

//go:embed icon.png
var iconPNG []byte

//go:embed icon.ico
var iconICO []byte

// IconPNG returns the status icon served by the control endpoint.
func IconPNG() []byte { return iconPNG }

// IconICO returns the icon used for the Windows version resource.
func IconICO() []byte { return iconICO }
