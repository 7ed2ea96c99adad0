//go:build windows

package mount

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

// SystemLister enumerates drive letters. Roots is ignored on Windows.
type SystemLister struct {
	Roots []string
}

func (l SystemLister) List(ctx context.Context) ([]Drive, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDrives: %w", err)
	}
	var out []Drive
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root := string(rune('A'+i)) + `:\`
		// empty card readers report a letter but no readable root
		if isDir(root) {
			out = append(out, Drive(root))
		}
	}
	return out, nil
}

// DefaultRoots is empty on Windows: drives are found by letter.
func DefaultRoots() []string { return nil }
