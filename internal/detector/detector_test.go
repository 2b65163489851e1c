package detector

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/snapshot"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	table *sysproc.Fake
	wins  *window.Fake
	ctrl  *control.RunControl
	clk   *clock.Fake
	start time.Time
	det   *Detector
	req   Request
}

func newRig(t *testing.T, expected, display string) *rig {
	t.Helper()
	ctx := context.Background()
	r := &rig{
		table: sysproc.NewFake(sysproc.Info{PID: 4, PPID: 1, Name: "explorer.exe"}),
		wins:  window.NewFake(window.Window{Handle: 1, Title: "Program Manager", PID: 4}),
		ctrl:  control.New(),
		start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	r.clk = clock.NewFake(r.start)
	r.det = New(Settings{
		MaxWait:         10 * time.Second,
		PollInterval:    2 * time.Second,
		PostDetectPause: 2 * time.Second,
		Aliases:         DefaultAliases(),
		UACProcessName:  "consent.exe",
	}, r.table, r.wins, r.ctrl, r.clk, nil)

	bp, err := snapshot.CaptureProcesses(ctx, r.table)
	require.NoError(t, err)
	bw, err := snapshot.CaptureWindows(ctx, r.wins)
	require.NoError(t, err)
	r.req = Request{BaselineProcesses: bp, BaselineWindows: bw, ExpectedExecutable: expected, DisplayName: display}
	return r
}

func (r *rig) elapsed() time.Duration { return r.clk.Now().Sub(r.start) }

func TestOwnerMatch(t *testing.T) {
	r := newRig(t, "notepad.exe", "Notepad")
	r.table.Add(sysproc.Info{PID: 50, PPID: 4, Name: "notepad.exe", Exe: `C:\Windows\notepad.exe`})
	r.wins.Add(window.Window{Handle: 5, Title: "Untitled - Notepad", PID: 50})

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind)
	assert.Equal(t, uintptr(5), out.Window.Handle)
	assert.Equal(t, int32(50), out.PID)
	assert.Equal(t, MatchedByOwner, out.MatchedBy)
	assert.Equal(t, 2*time.Second, r.elapsed(), "only the post-detect pause")
}

func TestOwnerMatchBeatsTitle(t *testing.T) {
	r := newRig(t, "notepad.exe", "Notepad")
	r.table.Add(
		sysproc.Info{PID: 60, Name: "help.exe"},
		sysproc.Info{PID: 50, Name: "notepad.exe"},
	)
	r.wins.Add(
		window.Window{Handle: 3, Title: "Notepad Help", PID: 60},
		window.Window{Handle: 7, Title: "Untitled", PID: 50},
	)

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind)
	assert.Equal(t, uintptr(7), out.Window.Handle)
	assert.Equal(t, MatchedByOwner, out.MatchedBy)
}

func TestAliasApplied(t *testing.T) {
	r := newRig(t, "cmd.exe", "Command Prompt")
	r.table.Add(sysproc.Info{PID: 70, Name: "WindowsTerminal.exe"})
	r.wins.Add(window.Window{Handle: 9, Title: "Administrator: C:\\", PID: 70})

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind)
	assert.Equal(t, MatchedByOwner, out.MatchedBy)
}

func TestTitleFallback(t *testing.T) {
	r := newRig(t, "launcher.exe", "Paint")
	// owner exited before it could be resolved
	r.wins.Add(window.Window{Handle: 11, Title: "untitled - PAINT", PID: 999})

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind)
	assert.Equal(t, MatchedByTitle, out.MatchedBy)
	assert.Equal(t, int32(999), out.PID)
}

func TestWindowAppearsLater(t *testing.T) {
	r := newRig(t, "calc.exe", "Calculator")
	r.clk.OnSleep = func(now time.Time) {
		if now.Sub(r.start) >= 5*time.Second {
			r.table.Add(sysproc.Info{PID: 80, Name: "calc.exe"})
			r.wins.Add(window.Window{Handle: 12, Title: "Calculator", PID: 80})
		}
	}

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind)
	assert.Equal(t, 8*time.Second, r.elapsed())
}

func TestUACIntercepted(t *testing.T) {
	r := newRig(t, "setup.exe", "Setup")
	r.table.Add(sysproc.Info{PID: 90, Name: "consent.exe"})

	out := r.det.Detect(context.Background(), r.req)
	assert.Equal(t, UACIntercepted, out.Kind)
	assert.Nil(t, out.Window)
}

func TestCancelled(t *testing.T) {
	r := newRig(t, "calc.exe", "Calculator")
	r.ctrl.Cancel()
	out := r.det.Detect(context.Background(), r.req)
	assert.Equal(t, Cancelled, out.Kind)
	assert.Zero(t, r.elapsed())
}

func TestCancelledWhilePaused(t *testing.T) {
	r := newRig(t, "calc.exe", "Calculator")
	r.ctrl.Pause()
	r.clk.OnSleep = func(now time.Time) {
		if now.Sub(r.start) >= 3*time.Second {
			r.ctrl.Cancel()
		}
	}
	out := r.det.Detect(context.Background(), r.req)
	assert.Equal(t, Cancelled, out.Kind)
}

func TestTimedOutWithUnmatchedWindows(t *testing.T) {
	r := newRig(t, "app.exe", "App")
	r.table.Add(sysproc.Info{PID: 40, Name: "updater.exe"})
	r.wins.Add(window.Window{Handle: 20, Title: "Updating...", PID: 40})

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, TimedOut, out.Kind)
	require.Len(t, out.Unmatched, 1)
	assert.Equal(t, uintptr(20), out.Unmatched[0].Handle)
	assert.Equal(t, 10*time.Second, r.elapsed())
}

func TestHeadlessProcess(t *testing.T) {
	r := newRig(t, "daemon.exe", "Daemon")
	r.table.Add(sysproc.Info{PID: 30, PPID: 4, Name: "DAEMON.EXE"})

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, FoundHeadless, out.Kind)
	assert.Equal(t, int32(30), out.PID)
	assert.Nil(t, out.Window)
}

func TestNothingAppears(t *testing.T) {
	r := newRig(t, "ghost.exe", "Ghost")
	out := r.det.Detect(context.Background(), r.req)
	assert.Equal(t, TimedOut, out.Kind)
	assert.Empty(t, out.Unmatched)
	assert.Equal(t, 10*time.Second, r.elapsed())
}

func TestPausedTimeExtendsBudget(t *testing.T) {
	r := newRig(t, "calc.exe", "Calculator")
	r.ctrl.Pause()
	r.clk.OnSleep = func(now time.Time) {
		el := now.Sub(r.start)
		if el >= 30*time.Second {
			r.ctrl.Resume()
		}
		if el >= 35*time.Second {
			r.table.Add(sysproc.Info{PID: 80, Name: "calc.exe"})
			r.wins.Add(window.Window{Handle: 12, Title: "Calculator", PID: 80})
		}
	}

	out := r.det.Detect(context.Background(), r.req)
	require.Equal(t, Found, out.Kind, "30s paused must not consume the 10s budget")
}

func TestParseAliases(t *testing.T) {
	a, err := ParseAliases([]string{"CMD.exe = WindowsTerminal.exe", "foo=bar"})
	require.NoError(t, err)
	assert.Equal(t, "windowsterminal.exe", a.Resolve("cmd.EXE"))
	assert.Equal(t, "notepad.exe", a.Resolve("Notepad.exe"))

	_, err = ParseAliases([]string{"broken"})
	assert.Error(t, err)
	_, err = ParseAliases([]string{"=x"})
	assert.Error(t, err)
}

func TestMatchTitleCaseFolding(t *testing.T) {
	assert.True(t, MatchTitle(Target{DisplayName: "strasse"}, Candidate{Window: window.Window{Title: "Karte - STRASSE"}}))
	assert.True(t, MatchTitle(Target{DisplayName: "ΣΊΣΥΦΟΣ"}, Candidate{Window: window.Window{Title: "σίσυφος - viewer"}}))
	assert.False(t, MatchTitle(Target{DisplayName: ""}, Candidate{Window: window.Window{Title: "x"}}))
}
