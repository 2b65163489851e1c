// Package snapshot captures point-in-time views of the process table and
// the desktop window list, and diffs them against a baseline.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
)

// ProcessSnapshot is the set of live PIDs at capture time.
type ProcessSnapshot map[int32]sysproc.Info

// WindowSnapshot is the set of top-level windows at capture time, keyed by
// handle.
type WindowSnapshot map[uintptr]window.Window

func CaptureProcesses(ctx context.Context, table sysproc.Table) (ProcessSnapshot, error) {
	procs, err := table.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture processes: %w", err)
	}
	snap := make(ProcessSnapshot, len(procs))
	for _, p := range procs {
		snap[p.PID] = p
	}
	return snap, nil
}

// CaptureWindows returns an empty snapshot on hosts without a window
// backend.
func CaptureWindows(ctx context.Context, sys window.System) (WindowSnapshot, error) {
	wins, err := sys.List(ctx)
	if errors.Is(err, window.ErrUnsupported) {
		return WindowSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("capture windows: %w", err)
	}
	snap := make(WindowSnapshot, len(wins))
	for _, w := range wins {
		snap[w.Handle] = w
	}
	return snap, nil
}

// NewProcesses returns the processes in cur that are absent from base,
// ordered by PID.
func NewProcesses(base, cur ProcessSnapshot) []sysproc.Info {
	var out []sysproc.Info
	for pid, p := range cur {
		if _, ok := base[pid]; !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// NewWindows returns the windows in cur that are absent from base, ordered
// by handle.
func NewWindows(base, cur WindowSnapshot) []window.Window {
	var out []window.Window
	for h, w := range cur {
		if _, ok := base[h]; !ok {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
