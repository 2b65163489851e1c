// Package cleanup removes windows and processes a test left behind.
package cleanup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/snapshot"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/terminator"
	"github.com/loykin/launchcheck/internal/window"
)

// Residue is what a sweep closed and terminated.
type Residue struct {
	Closed     []string
	Terminated []string
}

func (r Residue) Empty() bool { return len(r.Closed) == 0 && len(r.Terminated) == 0 }

// Scanner diffs the host against a baseline and removes whatever is new.
type Scanner struct {
	Table      sysproc.Table
	Windows    window.System
	Terminator *terminator.Terminator
	Logger     *slog.Logger
}

func New(table sysproc.Table, wins window.System, term *terminator.Terminator, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{Table: table, Windows: wins, Terminator: term, Logger: logger}
}

// Sweep closes new windows first, then terminates new processes and their
// trees. Windows and processes owned by protected executables are left
// alone. Sweeping twice against the same baseline yields an empty second
// Residue.
func (s *Scanner) Sweep(ctx context.Context, baseProcs snapshot.ProcessSnapshot, baseWins snapshot.WindowSnapshot) Residue {
	var closed, killed result.Set

	curWins, err := snapshot.CaptureWindows(ctx, s.Windows)
	if err != nil {
		s.Logger.Warn("sweep: capture windows", "error", err)
	}
	for _, w := range snapshot.NewWindows(baseWins, curWins) {
		if owner, ok := s.Table.Lookup(ctx, w.PID); ok && s.Terminator.IsProtected(owner) {
			continue
		}
		switch err := s.Windows.Close(ctx, w); {
		case err == nil:
			s.Logger.Info("sweep: closed residual window", "title", w.Title, "pid", w.PID)
			closed.Add(w.Title)
		case errors.Is(err, window.ErrGone):
		default:
			s.Logger.Warn("sweep: close window", "title", w.Title, "error", err)
		}
	}

	curProcs, err := snapshot.CaptureProcesses(ctx, s.Table)
	if err != nil {
		s.Logger.Warn("sweep: capture processes", "error", err)
	}
	for _, p := range snapshot.NewProcesses(baseProcs, curProcs) {
		if s.Terminator.IsProtected(p) || !s.Table.Running(ctx, p.PID) {
			continue
		}
		names := s.Terminator.Terminate(ctx, p.PID, true)
		if !s.Terminator.WaitExit(ctx, p.PID) {
			s.Logger.Warn("sweep: process ignored terminate, killing", "pid", p.PID)
			s.Terminator.Kill(ctx, p.PID)
		}
		if len(names) > 0 {
			s.Logger.Info("sweep: terminated residual process", "pid", p.PID, "names", names)
		}
		killed.Add(names...)
	}

	res := Residue{Closed: closed.Sorted(), Terminated: killed.Sorted()}
	metrics.AddResidual("window", len(res.Closed))
	metrics.AddResidual("process", len(res.Terminated))
	return res
}
