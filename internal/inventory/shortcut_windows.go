//go:build windows

package inventory

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// resolveShortcut reads TargetPath through the WScript.Shell automation
// object.
func resolveShortcut(path string) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: already initialized on this thread
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			return "", fmt.Errorf("com init: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return "", fmt.Errorf("create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", err
	}
	defer shell.Release()

	v, err := oleutil.CallMethod(shell, "CreateShortcut", path)
	if err != nil {
		return "", fmt.Errorf("open shortcut %s: %w", path, err)
	}
	sc := v.ToIDispatch()
	defer sc.Release()

	target, err := oleutil.GetProperty(sc, "TargetPath")
	if err != nil {
		return "", fmt.Errorf("read target of %s: %w", path, err)
	}
	defer func() { _ = target.Clear() }()
	return target.ToString(), nil
}
