//go:build windows

package launcher

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

type shellLauncher struct{}

// New returns a launcher backed by ShellExecuteW with the "open" verb.
func New() Launcher { return shellLauncher{} }

func (shellLauncher) Open(_ context.Context, path string) error {
	verb, err := windows.UTF16PtrFromString("open")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := windows.ShellExecute(0, verb, file, nil, nil, windows.SW_SHOWNORMAL); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}
