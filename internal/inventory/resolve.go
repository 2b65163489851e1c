package inventory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrUnsupportedLauncher = errors.New("launcher type cannot be resolved on this platform")

// Resolver maps a launcher file to the executable it starts.
type Resolver struct {
	Fs     afero.Fs
	Logger *slog.Logger
	// shortcut resolves .lnk files; nil means unsupported.
	shortcut func(path string) (string, error)
}

func NewResolver(fs afero.Fs, logger *slog.Logger) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Fs: fs, Logger: logger, shortcut: resolveShortcut}
}

// Resolve returns the target executable of path.
func (r *Resolver) Resolve(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lnk":
		if r.shortcut == nil {
			return "", ErrUnsupportedLauncher
		}
		return r.shortcut(path)
	case ".desktop":
		b, err := afero.ReadFile(r.Fs, path)
		if err != nil {
			return "", err
		}
		return DesktopExec(b)
	default:
		return path, nil
	}
}

// ResolveLines maps a launcher list to an aligned target list. Folder
// lines are copied through and failures become UnresolvedMarker.
func (r *Resolver) ResolveLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, FolderPrefix) {
			out = append(out, l)
			continue
		}
		target, err := r.Resolve(l)
		if err != nil || strings.TrimSpace(target) == "" {
			r.Logger.Warn("could not resolve launcher target", "launcher", l, "error", err)
			out = append(out, UnresolvedMarker)
			continue
		}
		out = append(out, target)
	}
	return out
}

// DesktopExec extracts the program from the [Desktop Entry] group of a
// freedesktop .desktop file. TryExec wins over Exec; field codes and
// arguments are dropped.
func DesktopExec(b []byte) (string, error) {
	var exec, tryExec string
	inEntry := false
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "Exec":
			exec = strings.TrimSpace(v)
		case "TryExec":
			tryExec = strings.TrimSpace(v)
		}
	}
	if tryExec != "" {
		return tryExec, nil
	}
	if prog := firstArg(exec); prog != "" {
		return prog, nil
	}
	return "", fmt.Errorf("desktop entry has no Exec key")
}

// firstArg returns the program of an Exec value, honoring double quotes.
func firstArg(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if s[0] == '"' {
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : end+1]
		}
		return strings.Trim(s, `"`)
	}
	prog, _, _ := strings.Cut(s, " ")
	if strings.HasPrefix(prog, "%") {
		return ""
	}
	return prog
}
