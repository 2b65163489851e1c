package detector

import (
	"fmt"
	"strings"
)

// Aliases maps the executable a launcher points at to the executable that
// actually owns the resulting window (cmd.exe -> WindowsTerminal.exe).
type Aliases map[string]string

// DefaultAliases are the substitutions known to be needed on a stock
// Windows desktop.
func DefaultAliases() Aliases {
	return Aliases{
		"cmd.exe":        "windowsterminal.exe",
		"powershell.exe": "windowsterminal.exe",
		"wmplayer.exe":   "setup_wm.exe",
	}
}

// ParseAliases reads "from=to" entries.
func ParseAliases(entries []string) (Aliases, error) {
	a := make(Aliases, len(entries))
	for _, e := range entries {
		from, to, ok := strings.Cut(e, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid executable alias %q: want from=to", e)
		}
		a[strings.ToLower(from)] = strings.ToLower(to)
	}
	return a, nil
}

// Resolve returns the lower-cased name the window owner is expected to have.
func (a Aliases) Resolve(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if to, ok := a[n]; ok {
		return to
	}
	return n
}
