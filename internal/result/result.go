package result

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Status is the terminal outcome of a single application test.
type Status string

const (
	StatusNotTested                  Status = "Not Tested"
	StatusSuccess                    Status = "Success"
	StatusMostlyPass                 Status = "Mostly Pass"
	StatusManualInterventionRequired Status = "Manual Intervention Required"
	StatusCancelled                  Status = "Cancelled"
	StatusFailed                     Status = "Failed"

	// StatusPerfectPass is the report name some consumers use for Success.
	StatusPerfectPass = StatusSuccess
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusMostlyPass, StatusManualInterventionRequired, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Per-case error taxonomy. None of these abort a batch except cancellation,
// which lives in the control package.
var (
	ErrLauncherNotFound = errors.New("launcher not found")
	ErrDetectionTimeout = errors.New("no window or process observed within the wait budget")
	ErrInterceptedByOS  = errors.New("launch intercepted by a UAC consent prompt")
)

// UACWindowMarker is reported as the associated window of a case stopped by
// a consent prompt.
const UACWindowMarker = "User Account Control"

// TestCase is one inventory entry.
type TestCase struct {
	LauncherPath           string `json:"launcher_path"`
	ExpectedExecutableName string `json:"expected_executable"`
	DisplayName            string `json:"display_name"`
}

// NewTestCase derives the display name from the launcher file name and
// normalizes the expected executable to a lower-case base name.
func NewTestCase(launcherPath, targetPath string) TestCase {
	return TestCase{
		LauncherPath:           launcherPath,
		ExpectedExecutableName: strings.ToLower(baseName(targetPath)),
		DisplayName:            DisplayName(launcherPath),
	}
}

// DisplayName strips the directory and the launcher extension.
func DisplayName(launcherPath string) string {
	name := baseName(launcherPath)
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".lnk", ".desktop", ".url", ".app":
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// baseName handles both separators so Windows inventories can be processed
// on any host.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// TestResult is the immutable record produced for each TestCase.
type TestResult struct {
	Name                      string        `json:"name" yaml:"name"`
	LauncherFileName          string        `json:"launcher" yaml:"launcher"`
	ExpectedExecutableName    string        `json:"expected_executable" yaml:"expected_executable"`
	Status                    Status        `json:"status" yaml:"status"`
	Remarks                   string        `json:"remarks" yaml:"remarks"`
	AssociatedWindowTitles    []string      `json:"associated_windows" yaml:"associated_windows"`
	TerminatedExecutableNames []string      `json:"terminated_executables" yaml:"terminated_executables"`
	ClosedWindowTitles        []string      `json:"closed_windows" yaml:"closed_windows"`
	DetectedBy                string        `json:"detected_by,omitempty" yaml:"detected_by,omitempty"`
	StartedAt                 time.Time     `json:"started_at" yaml:"started_at"`
	Duration                  time.Duration `json:"duration" yaml:"duration"`
}

// NewTestResult returns the NotTested skeleton for tc.
func NewTestResult(tc TestCase) TestResult {
	return TestResult{
		Name:                   tc.DisplayName,
		LauncherFileName:       baseName(tc.LauncherPath),
		ExpectedExecutableName: tc.ExpectedExecutableName,
		Status:                 StatusNotTested,
	}
}

// JoinCell renders a list the way the tabular report expects it.
func JoinCell(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, "; ")
}

// Set is an insertion-ordered string set.
type Set struct {
	seen  map[string]struct{}
	items []string
}

func (s *Set) Add(vals ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range vals {
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *Set) Len() int { return len(s.items) }

// Sorted returns a sorted copy of the members.
func (s *Set) Sorted() []string {
	out := append([]string(nil), s.items...)
	sort.Strings(out)
	return out
}

// Items returns members in insertion order.
func (s *Set) Items() []string { return append([]string(nil), s.items...) }
