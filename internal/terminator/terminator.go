// Package terminator tears down a process and everything it spawned.
package terminator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/sysproc"
)

const (
	DefaultGrace = 5 * time.Second
	defaultPoll  = 100 * time.Millisecond
)

// Terminator signals process trees while never touching protected
// processes or itself.
type Terminator struct {
	Table     sysproc.Table
	Protected sysproc.NameSet
	Grace     time.Duration
	Poll      time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger

	self int32
}

func New(table sysproc.Table, protected sysproc.NameSet, grace time.Duration, clk clock.Clock, logger *slog.Logger) *Terminator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminator{
		Table:     table,
		Protected: protected,
		Grace:     grace,
		Poll:      defaultPoll,
		Clock:     clk,
		Logger:    logger,
		self:      int32(os.Getpid()),
	}
}

// IsProtected reports whether p must never be signaled.
func (t *Terminator) IsProtected(p sysproc.Info) bool {
	if p.PID == t.self {
		return true
	}
	return t.Protected.Contains(p.Name) || t.Protected.Contains(p.ExecutableName())
}

// Terminate stops every unprotected descendant of root, escalating to a
// kill for those still alive after the grace window. When includeRoot is
// set the root itself is asked to exit last; waiting for it (WaitExit) and
// forcing it are left to the caller. The names of the processes actually signaled are returned in
// order of first signal.
func (t *Terminator) Terminate(ctx context.Context, root int32, includeRoot bool) []string {
	log := t.Logger.With("root_pid", root)

	rootInfo, ok := t.Table.Lookup(ctx, root)
	if !ok {
		log.Debug("root process already gone")
		return nil
	}
	if t.IsProtected(rootInfo) {
		log.Info("root process is protected, skipping", "name", DisplayName(rootInfo))
		return nil
	}

	procs, err := t.Table.List(ctx)
	if err != nil {
		log.Warn("list processes", "error", err)
	}

	var names result.Set
	var pending []sysproc.Info
	for _, p := range sysproc.Descendants(procs, root) {
		if t.IsProtected(p) {
			log.Debug("skip protected descendant", "pid", p.PID, "name", DisplayName(p))
			continue
		}
		if t.signal(ctx, log, p, false) {
			names.Add(DisplayName(p))
			pending = append(pending, p)
		}
	}

	pending = t.waitExit(ctx, pending)
	for _, p := range pending {
		log.Info("force killing process", "pid", p.PID, "name", DisplayName(p))
		t.signal(ctx, log, p, true)
	}

	if includeRoot && t.signal(ctx, log, rootInfo, false) {
		names.Add(DisplayName(rootInfo))
	}

	out := names.Items()
	metrics.AddTerminated(len(out))
	return out
}

// WaitExit gives pid up to the grace window to exit after a terminate and
// reports whether it did.
func (t *Terminator) WaitExit(ctx context.Context, pid int32) bool {
	return len(t.waitExit(ctx, []sysproc.Info{{PID: pid}})) == 0
}

// Alive reports whether pid is still running.
func (t *Terminator) Alive(ctx context.Context, pid int32) bool {
	return t.Table.Running(ctx, pid)
}

// Kill forcefully terminates pid unless it is protected; it reports
// whether a signal was delivered.
func (t *Terminator) Kill(ctx context.Context, pid int32) bool {
	info, ok := t.Table.Lookup(ctx, pid)
	if !ok || t.IsProtected(info) {
		return false
	}
	return t.signal(ctx, t.Logger, info, true)
}

// signal delivers a terminate or kill. An already-exited process is not an
// error; it is simply not reported as signaled.
func (t *Terminator) signal(ctx context.Context, log *slog.Logger, p sysproc.Info, kill bool) bool {
	var err error
	if kill {
		err = t.Table.Kill(ctx, p.PID)
	} else {
		err = t.Table.Terminate(ctx, p.PID)
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, sysproc.ErrGone):
		return false
	case errors.Is(err, sysproc.ErrAccessDenied):
		log.Warn("access denied signaling process", "pid", p.PID, "name", DisplayName(p))
	default:
		log.Warn("signal process", "pid", p.PID, "name", DisplayName(p), "kill", kill, "error", err)
	}
	return false
}

// waitExit polls until every process in pending has exited or the grace
// window elapses, returning the survivors.
func (t *Terminator) waitExit(ctx context.Context, pending []sysproc.Info) []sysproc.Info {
	deadline := t.Clock.Now().Add(t.Grace)
	for {
		alive := pending[:0]
		for _, p := range pending {
			if t.Table.Running(ctx, p.PID) {
				alive = append(alive, p)
			}
		}
		pending = alive
		if len(pending) == 0 || ctx.Err() != nil || !t.Clock.Now().Before(deadline) {
			return pending
		}
		t.Clock.Sleep(t.Poll)
	}
}

// DisplayName is the name recorded for a signaled process.
func DisplayName(p sysproc.Info) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ExecutableName()
}
