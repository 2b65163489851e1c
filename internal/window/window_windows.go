//go:build windows

package window

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procPostMessageW         = user32.NewProc("PostMessageW")
)

const wmClose = 0x0010

// EnumWindows callbacks are a scarce resource; create one and serialize use.
var (
	enumMu      sync.Mutex
	enumHandles []windows.HWND
	enumFunc    = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		enumHandles = append(enumHandles, hwnd)
		return 1
	})
)

type user32System struct{}

// NewSystem returns the user32-backed window system.
func NewSystem() System { return user32System{} }

func (user32System) List(context.Context) ([]Window, error) {
	enumMu.Lock()
	enumHandles = enumHandles[:0]
	err := windows.EnumWindows(enumFunc, nil)
	handles := append([]windows.HWND(nil), enumHandles...)
	enumMu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Window, 0, len(handles))
	for _, h := range handles {
		if !windows.IsWindowVisible(h) {
			continue
		}
		title := windowText(h)
		if title == "" {
			continue
		}
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(h, &pid); err != nil || pid == 0 {
			continue
		}
		out = append(out, Window{Handle: uintptr(h), Title: title, PID: int32(pid)})
	}
	return out, nil
}

func (user32System) Close(_ context.Context, w Window) error {
	h := windows.HWND(w.Handle)
	if !windows.IsWindow(h) {
		return ErrGone
	}
	ret, _, err := procPostMessageW.Call(uintptr(h), wmClose, 0, 0)
	if ret != 0 {
		return nil
	}
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return ErrAccessDenied
	}
	if errors.Is(err, windows.ERROR_INVALID_WINDOW_HANDLE) {
		return ErrGone
	}
	return err
}

func windowText(h windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	got, _, _ := procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if got == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:got])
}
