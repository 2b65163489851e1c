// Package window enumerates and closes top-level desktop windows.
package window

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGone means the window was destroyed before it could be closed.
	ErrGone = errors.New("window already closed")
	// ErrAccessDenied means the window belongs to a process we may not touch.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnsupported means no window backend is available on this host.
	ErrUnsupported = errors.New("window enumeration not supported on this host")
)

// Window is one top-level window and the process that owns it.
type Window struct {
	Handle uintptr `json:"handle"`
	Title  string  `json:"title"`
	PID    int32   `json:"pid"`
}

func (w Window) String() string {
	return fmt.Sprintf("%q (0x%x, pid %d)", w.Title, w.Handle, w.PID)
}

// System is the window-manager surface. Implementations must be safe for
// concurrent use.
type System interface {
	// List returns visible, titled top-level windows. A window destroyed
	// during enumeration is omitted.
	List(ctx context.Context) ([]Window, error)
	// Close asks the window to close, the way a user clicking its close
	// button would.
	Close(ctx context.Context, w Window) error
}
