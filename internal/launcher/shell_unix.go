//go:build !windows

package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

type shellLauncher struct {
	opener string
}

// New returns a launcher that hands the file to the desktop opener
// (open on macOS, xdg-open elsewhere).
func New() Launcher {
	if runtime.GOOS == "darwin" {
		return shellLauncher{opener: "open"}
	}
	return shellLauncher{opener: "xdg-open"}
}

// Open starts the opener detached from ctx; the application must outlive
// this call. The opener is reaped in the background.
func (l shellLauncher) Open(_ context.Context, path string) error {
	// #nosec G204
	cmd := exec.Command(l.opener, path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
