// Package sysproc is a thin view over the OS process table. Queries return
// (value, ok) pairs so a process that exits mid-query is an ordinary
// outcome rather than an error.
package sysproc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrGone means the process had already exited when it was signaled.
	ErrGone = errors.New("process already exited")
	// ErrAccessDenied means the OS refused to signal the process.
	ErrAccessDenied = errors.New("access denied")
)

// Info describes one live process.
type Info struct {
	PID  int32  `json:"pid"`
	PPID int32  `json:"ppid"`
	Name string `json:"name"`
	Exe  string `json:"exe,omitempty"`
}

// ExecutableName returns the lower-cased base name of the image, falling
// back to the process name when the image path is not readable.
func (i Info) ExecutableName() string {
	if i.Exe != "" {
		return strings.ToLower(filepath.Base(strings.ReplaceAll(i.Exe, `\`, "/")))
	}
	return strings.ToLower(i.Name)
}

// Table is the process-table surface used by the snapshot, terminator and
// cleanup code. Implementations must be safe for concurrent use.
type Table interface {
	// List enumerates live processes; entries that vanish mid-enumeration
	// are omitted.
	List(ctx context.Context) ([]Info, error)
	// Lookup resolves a single PID.
	Lookup(ctx context.Context, pid int32) (Info, bool)
	// Terminate requests graceful termination.
	Terminate(ctx context.Context, pid int32) error
	// Kill forcefully terminates.
	Kill(ctx context.Context, pid int32) error
	// Running reports whether pid is still alive (zombies count as gone).
	Running(ctx context.Context, pid int32) bool
}

// NameSet is a case-insensitive set of process names.
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Contains matches name with or without a trailing ".exe".
func (s NameSet) Contains(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	if _, ok := s[n]; ok {
		return true
	}
	if strings.HasSuffix(n, ".exe") {
		_, ok := s[strings.TrimSuffix(n, ".exe")]
		return ok
	}
	_, ok := s[n+".exe"]
	return ok
}

// Descendants walks the parent/child relation in procs starting at root
// and returns every descendant, parents before children. Cycles caused by
// PID reuse are ignored.
func Descendants(procs []Info, root int32) []Info {
	children := make(map[int32][]Info, len(procs))
	for _, p := range procs {
		if p.PID == p.PPID {
			continue
		}
		children[p.PPID] = append(children[p.PPID], p)
	}
	seen := map[int32]bool{root: true}
	var out []Info
	queue := []int32{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c.PID] {
				continue
			}
			seen[c.PID] = true
			out = append(out, c)
			queue = append(queue, c.PID)
		}
	}
	return out
}
