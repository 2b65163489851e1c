package detector

import (
	"strings"

	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
	"golang.org/x/text/cases"
)

// Target is what a launch is expected to produce.
type Target struct {
	// Executable is the expected owner name with aliases applied.
	Executable  string
	DisplayName string
}

// Candidate is a window that appeared since the baseline, with the
// executable name of its owner when it could be resolved.
type Candidate struct {
	Window window.Window
	Owner  string
}

// Matcher decides whether a candidate window belongs to the launch.
type Matcher struct {
	Name  string
	Match func(t Target, c Candidate) bool
}

const (
	MatchedByOwner   = "owner"
	MatchedByTitle   = "title"
	MatchedByProcess = "process"
)

// DefaultMatchers tries the owning executable first; it is decisive. The
// window title is a fallback for launchers whose target hands off to
// another process.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Name: MatchedByOwner, Match: MatchOwner},
		{Name: MatchedByTitle, Match: MatchTitle},
	}
}

func MatchOwner(t Target, c Candidate) bool {
	if t.Executable == "" || c.Owner == "" {
		return false
	}
	return sysproc.NewNameSet(t.Executable).Contains(c.Owner)
}

// MatchTitle is a case-insensitive substring test of the display name in
// the window title.
func MatchTitle(t Target, c Candidate) bool {
	name := strings.TrimSpace(t.DisplayName)
	if name == "" || c.Window.Title == "" {
		return false
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(c.Window.Title), fold.String(name))
}
