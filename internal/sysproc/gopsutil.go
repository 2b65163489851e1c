package sysproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// GopsTable implements Table on top of gopsutil.
type GopsTable struct{}

func NewGopsTable() *GopsTable { return &GopsTable{} }

func (GopsTable) List(ctx context.Context) ([]Info, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	out := make([]Info, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		out = append(out, Info{PID: p.Pid, PPID: ppid, Name: name})
	}
	return out, nil
}

func (GopsTable) Lookup(ctx context.Context, pid int32) (Info, bool) {
	if pid <= 0 {
		return Info{}, false
	}
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Info{}, false
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Info{}, false
	}
	ppid, _ := p.PpidWithContext(ctx)
	// Exe is frequently denied for processes owned by other users.
	exe, _ := p.ExeWithContext(ctx)
	return Info{PID: pid, PPID: ppid, Name: name, Exe: exe}, true
}

func (t GopsTable) Terminate(ctx context.Context, pid int32) error {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return t.normalize(ctx, pid, err)
	}
	return t.normalize(ctx, pid, p.TerminateWithContext(ctx))
}

func (t GopsTable) Kill(ctx context.Context, pid int32) error {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return t.normalize(ctx, pid, err)
	}
	return t.normalize(ctx, pid, p.KillWithContext(ctx))
}

func (GopsTable) Running(ctx context.Context, pid int32) bool {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return false
	}
	ok, err := p.IsRunningWithContext(ctx)
	if err != nil || !ok {
		return false
	}
	// A signaled child that has not been reaped yet is a zombie; treat it as gone.
	if st, err := p.StatusWithContext(ctx); err == nil {
		for _, s := range st {
			if s == gopsproc.Zombie {
				return false
			}
		}
	}
	return true
}

// normalize maps platform errors onto ErrGone / ErrAccessDenied.
func (GopsTable) normalize(ctx context.Context, pid int32, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gopsproc.ErrorProcessNotRunning) || errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return ErrGone
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: pid %d: %v", ErrAccessDenied, pid, err)
	}
	// Windows reports a vanished PID as an invalid parameter; confirm by asking again.
	if exists, perr := gopsproc.PidExistsWithContext(ctx, pid); perr == nil && !exists {
		return ErrGone
	}
	return fmt.Errorf("signal pid %d: %w", pid, err)
}
