// Package inventory builds the list of launchers to test: it collects
// launcher files from the desktop menus, resolves each to its target
// executable, and loads the resulting pair of line files back as test
// cases.
package inventory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/loykin/launchcheck/internal/result"
	"github.com/spf13/afero"
)

const (
	// FolderPrefix marks a directory entry in a launcher list. Folder lines
	// keep both files aligned and are skipped when loading.
	FolderPrefix = "[Folder]"
	// UnresolvedMarker stands in for a target that could not be resolved.
	UnresolvedMarker = "[Unresolved]"
)

var ErrMismatchedInventory = errors.New("launcher and target lists differ in length")

// DefaultRoots are the directories launchers are collected from.
func DefaultRoots() []string {
	if runtime.GOOS == "windows" {
		var roots []string
		if pd := os.Getenv("PROGRAMDATA"); pd != "" {
			roots = append(roots, filepath.Join(pd, "Microsoft", "Windows", "Start Menu", "Programs"))
		}
		if ad := os.Getenv("APPDATA"); ad != "" {
			roots = append(roots, filepath.Join(ad, "Microsoft", "Windows", "Start Menu", "Programs"))
		}
		return roots
	}
	var roots []string
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".local", "share", "applications"))
	}
	dirs := os.Getenv("XDG_DATA_DIRS")
	if dirs == "" {
		dirs = "/usr/local/share:/usr/share"
	}
	for _, d := range filepath.SplitList(dirs) {
		if d != "" {
			roots = append(roots, filepath.Join(d, "applications"))
		}
	}
	return roots
}

// DefaultExtensions are the launcher file types of this platform.
func DefaultExtensions() []string {
	if runtime.GOOS == "windows" {
		return []string{".lnk"}
	}
	return []string{".desktop"}
}

// Collect walks each existing root in name order and returns launcher
// paths interleaved with "[Folder] rel/path" lines for every directory.
func Collect(fs afero.Fs, roots, exts []string) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}
	var out []string
	for _, root := range roots {
		ok, err := afero.DirExists(fs, root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !ok {
			continue
		}
		if err := walk(fs, root, root, want, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func walk(fs afero.Fs, base, dir string, want map[string]bool, out *[]string) error {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			rel, err := filepath.Rel(base, full)
			if err != nil {
				rel = e.Name()
			}
			*out = append(*out, FolderPrefix+" "+rel)
			if err := walk(fs, base, full, want, out); err != nil {
				return err
			}
			continue
		}
		if want[strings.ToLower(filepath.Ext(e.Name()))] {
			*out = append(*out, full)
		}
	}
	return nil
}

// ReadLines returns the trimmed, non-empty lines of path.
func ReadLines(fs afero.Fs, path string) ([]string, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return parseLines(b), nil
}

func parseLines(b []byte) []string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// WriteLines writes one entry per line.
func WriteLines(fs afero.Fs, path string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0o644)
}

// LoadPairs reads the launcher list and the aligned target list and
// returns one test case per launcher, skipping folder lines.
func LoadPairs(fs afero.Fs, launchersPath, targetsPath string) ([]result.TestCase, error) {
	launchers, err := ReadLines(fs, launchersPath)
	if err != nil {
		return nil, fmt.Errorf("read launchers: %w", err)
	}
	targets, err := ReadLines(fs, targetsPath)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return Pair(launchers, targets)
}

// Pair zips aligned launcher and target lines into test cases.
func Pair(launchers, targets []string) ([]result.TestCase, error) {
	if len(launchers) != len(targets) {
		return nil, fmt.Errorf("%w: %d launchers, %d targets", ErrMismatchedInventory, len(launchers), len(targets))
	}
	cases := make([]result.TestCase, 0, len(launchers))
	for i, l := range launchers {
		if strings.HasPrefix(l, FolderPrefix) {
			continue
		}
		target := targets[i]
		if target == UnresolvedMarker || strings.HasPrefix(target, FolderPrefix) {
			target = ""
		}
		cases = append(cases, result.NewTestCase(l, target))
	}
	return cases, nil
}
