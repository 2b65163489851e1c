//go:build !windows

package window

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// wmctrlSystem drives an EWMH-compliant X11 window manager through wmctrl.
type wmctrlSystem struct {
	path string
}

// NewSystem returns a wmctrl-backed window system. When wmctrl is not
// installed every List call reports ErrUnsupported.
func NewSystem() System {
	p, _ := exec.LookPath("wmctrl")
	return wmctrlSystem{path: p}
}

func (s wmctrlSystem) List(ctx context.Context) ([]Window, error) {
	if s.path == "" {
		return nil, ErrUnsupported
	}
	// #nosec G204
	out, err := exec.CommandContext(ctx, s.path, "-lp").Output()
	if err != nil {
		return nil, fmt.Errorf("wmctrl -lp: %w", err)
	}
	return parseWmctrl(string(out)), nil
}

func (s wmctrlSystem) Close(ctx context.Context, w Window) error {
	if s.path == "" {
		return ErrUnsupported
	}
	id := "0x" + strconv.FormatUint(uint64(w.Handle), 16)
	// #nosec G204
	if err := exec.CommandContext(ctx, s.path, "-i", "-c", id).Run(); err != nil {
		if wins, lerr := s.List(ctx); lerr == nil && !containsHandle(wins, w.Handle) {
			return ErrGone
		}
		return fmt.Errorf("wmctrl -c %s: %w", id, err)
	}
	return nil
}

// parseWmctrl parses `wmctrl -lp` output:
//
//	0x03a00003  0 12345  host Window title with spaces
//
// Malformed lines and untitled windows are skipped.
func parseWmctrl(out string) []Window {
	var wins []Window
	for _, line := range strings.Split(out, "\n") {
		fields, title := cutFields(line, 4)
		if len(fields) < 4 || title == "" {
			continue
		}
		h, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil {
			continue
		}
		pid, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			continue
		}
		wins = append(wins, Window{Handle: uintptr(h), Title: title, PID: int32(pid)})
	}
	return wins
}

// cutFields splits off the first n whitespace-separated fields and returns
// the remainder verbatim (minus leading blanks).
func cutFields(line string, n int) ([]string, string) {
	rest := strings.TrimRight(line, "\r")
	fields := make([]string, 0, n)
	for len(fields) < n {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:i])
		rest = rest[i:]
	}
	return fields, strings.TrimLeft(rest, " \t")
}

func containsHandle(wins []Window, h uintptr) bool {
	for _, w := range wins {
		if w.Handle == h {
			return true
		}
	}
	return false
}
