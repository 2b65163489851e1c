package inventory

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuFs(t *testing.T) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := filepath.Join("/", "menu")
	files := []string{
		filepath.Join(root, "Zeta.lnk"),
		filepath.Join(root, "Accessories", "Paint.lnk"),
		filepath.Join(root, "Accessories", "readme.txt"),
		filepath.Join(root, "Accessories", "System Tools", "Character Map.LNK"),
		filepath.Join(root, "Alpha.lnk"),
	}
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0o644))
	}
	return fs, root
}

func TestCollectSortedWithFolders(t *testing.T) {
	fs, root := menuFs(t)

	got, err := Collect(fs, []string{root, filepath.Join("/", "missing")}, []string{".lnk"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[Folder] Accessories",
		filepath.Join(root, "Accessories", "Paint.lnk"),
		"[Folder] " + filepath.Join("Accessories", "System Tools"),
		filepath.Join(root, "Accessories", "System Tools", "Character Map.LNK"),
		filepath.Join(root, "Alpha.lnk"),
		filepath.Join(root, "Zeta.lnk"),
	}, got)
}

func TestWriteAndLoadPairs(t *testing.T) {
	fs := afero.NewMemMapFs()
	launchers := []string{
		"[Folder] Accessories",
		`C:\Menu\Accessories\Paint.lnk`,
		`C:\Menu\Broken.lnk`,
		`C:\Menu\Notepad.lnk`,
	}
	targets := []string{
		"[Folder] Accessories",
		`C:\Windows\System32\mspaint.exe`,
		UnresolvedMarker,
		`C:\Windows\notepad.exe`,
	}
	require.NoError(t, WriteLines(fs, "/l.txt", launchers))
	require.NoError(t, WriteLines(fs, "/t.txt", targets))

	cases, err := LoadPairs(fs, "/l.txt", "/t.txt")
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "Paint", cases[0].DisplayName)
	assert.Equal(t, "mspaint.exe", cases[0].ExpectedExecutableName)
	assert.Equal(t, "", cases[1].ExpectedExecutableName)
	assert.Equal(t, "notepad.exe", cases[2].ExpectedExecutableName)
}

func TestLoadPairsMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteLines(fs, "/l.txt", []string{"a.lnk", "b.lnk"}))
	require.NoError(t, WriteLines(fs, "/t.txt", []string{"a.exe"}))

	_, err := LoadPairs(fs, "/l.txt", "/t.txt")
	assert.ErrorIs(t, err, ErrMismatchedInventory)

	_, err = LoadPairs(fs, "/l.txt", "/none.txt")
	assert.Error(t, err)
}

func TestReadLinesSkipsBlankAndBOM(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("\xef\xbb\xbfone\r\n\n  two  \n\n"), 0o644))
	lines, err := ReadLines(fs, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestResolveLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/apps/gedit.desktop", []byte(
		"[Desktop Entry]\nName=Text Editor\nExec=gedit %U\n\n[Desktop Action new-window]\nExec=gedit --new-window\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/apps/broken.desktop", []byte("[Desktop Entry]\nName=Broken\n"), 0o644))

	r := NewResolver(fs, nil)
	r.shortcut = func(p string) (string, error) {
		if p == "bad.lnk" {
			return "", errors.New("not a shortcut")
		}
		return `C:\Program Files\App\app.exe`, nil
	}

	got := r.ResolveLines([]string{
		"[Folder] Tools",
		"/apps/gedit.desktop",
		"/apps/broken.desktop",
		"/apps/missing.desktop",
		"good.lnk",
		"bad.lnk",
		`C:\direct\tool.exe`,
	})
	assert.Equal(t, []string{
		"[Folder] Tools",
		"gedit",
		UnresolvedMarker,
		UnresolvedMarker,
		`C:\Program Files\App\app.exe`,
		UnresolvedMarker,
		`C:\direct\tool.exe`,
	}, got)
}

func TestResolveShortcutUnsupported(t *testing.T) {
	r := &Resolver{Fs: afero.NewMemMapFs()}
	_, err := r.Resolve("x.lnk")
	assert.ErrorIs(t, err, ErrUnsupportedLauncher)
}

func TestDesktopExec(t *testing.T) {
	cases := map[string]string{
		"[Desktop Entry]\nExec=\"/opt/My App/bin/app\" --flag %f\n": "/opt/My App/bin/app",
		"[Desktop Entry]\nTryExec=firefox\nExec=firefox %u\n":        "firefox",
		"# comment\n[Desktop Entry]\nExec=/usr/bin/vlc\n":            "/usr/bin/vlc",
	}
	for in, want := range cases {
		got, err := DesktopExec([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := DesktopExec([]byte("[Other]\nExec=nope\n"))
	assert.Error(t, err)
}
