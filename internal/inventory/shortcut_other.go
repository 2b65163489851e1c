//go:build !windows

package inventory

// .lnk files are only resolvable through the Windows shell.
var resolveShortcut func(path string) (string, error)
