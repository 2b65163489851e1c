package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/detector"
	"github.com/loykin/launchcheck/internal/launcher"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lnk = "/menu/Notepad.lnk"

type env struct {
	table  *sysproc.Fake
	wins   *window.Fake
	launch *launcher.Fake
	ctrl   *control.RunControl
	clk    *clock.Fake
	orch   *Orchestrator
	tc     result.TestCase
}

func testSettings() Settings {
	return Settings{
		Detector: detector.Settings{
			MaxWait:         10 * time.Second,
			PollInterval:    2 * time.Second,
			PostDetectPause: 2 * time.Second,
			Aliases:         detector.DefaultAliases(),
			UACProcessName:  "consent.exe",
		},
		AdditionalWait:  5 * time.Second,
		PostCloseSettle: 2 * time.Second,
		TerminateGrace:  5 * time.Second,
		Protected:       sysproc.NewNameSet("explorer.exe", "svchost.exe"),
	}
}

func newEnv(t *testing.T, onOpen func(e *env)) *env {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, lnk, []byte("shortcut"), 0o644))

	e := &env{
		table: sysproc.NewFake(sysproc.Info{PID: 4, PPID: 1, Name: "explorer.exe"}),
		wins:  window.NewFake(window.Window{Handle: 1, Title: "Program Manager", PID: 4}),
		ctrl:  control.New(),
		clk:   clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		tc:    result.NewTestCase(lnk, `C:\Windows\System32\notepad.exe`),
	}
	e.launch = &launcher.Fake{}
	if onOpen != nil {
		e.launch.OnOpen = func(string) { onOpen(e) }
	}
	e.orch = New(testSettings(), Deps{
		Table:    e.table,
		Windows:  e.wins,
		Launcher: e.launch,
		Fs:       fs,
		Control:  e.ctrl,
		Clock:    e.clk,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e
}

func openNotepad(e *env) {
	e.table.Add(
		sysproc.Info{PID: 50, PPID: 4, Name: "notepad.exe"},
		sysproc.Info{PID: 51, PPID: 50, Name: "conhost.exe"},
	)
	e.wins.Add(window.Window{Handle: 10, Title: "Untitled - Notepad", PID: 50})
}

func TestSuccessfulLaunch(t *testing.T) {
	e := newEnv(t, func(e *env) {
		openNotepad(e)
		// an unrelated tray helper the app left behind
		e.table.Add(sysproc.Info{PID: 60, PPID: 4, Name: "tray.exe"})
	})

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, RemarkSuccess, res.Remarks)
	assert.Equal(t, "Notepad", res.Name)
	assert.Equal(t, "Notepad.lnk", res.LauncherFileName)
	assert.Equal(t, []string{"Untitled - Notepad"}, res.AssociatedWindowTitles)
	assert.Equal(t, []string{"Untitled - Notepad"}, res.ClosedWindowTitles)
	assert.Equal(t, []string{"conhost.exe", "notepad.exe", "tray.exe"}, res.TerminatedExecutableNames)
	assert.Equal(t, detector.MatchedByOwner, res.DetectedBy)
	assert.Positive(t, res.Duration)

	ctx := context.Background()
	assert.True(t, e.table.Running(ctx, 4))
	for _, pid := range []int32{50, 51, 60} {
		assert.False(t, e.table.Running(ctx, pid))
	}
}

func TestLauncherMissing(t *testing.T) {
	e := newEnv(t, openNotepad)
	tc := result.NewTestCase("/menu/Gone.lnk", "gone.exe")

	res := e.orch.Run(context.Background(), tc)
	assert.Equal(t, result.StatusFailed, res.Status)
	assert.Equal(t, "Launcher not found: Gone.lnk", res.Remarks)
	assert.Empty(t, e.launch.Opened())
	assert.Empty(t, e.table.Signals())
}

func TestCancelledBeforeStart(t *testing.T) {
	e := newEnv(t, openNotepad)
	e.ctrl.Cancel()

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusCancelled, res.Status)
	assert.Equal(t, RemarkCancelled, res.Remarks)
	assert.Empty(t, e.launch.Opened())
}

func TestCancelledDuringDetection(t *testing.T) {
	e := newEnv(t, nil)
	e.clk.OnSleep = func(time.Time) { e.ctrl.Cancel() }

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusCancelled, res.Status)
	assert.Len(t, e.launch.Opened(), 1)
	assert.Empty(t, e.table.Signals())
}

func TestUACPrompt(t *testing.T) {
	e := newEnv(t, func(e *env) {
		e.table.Add(sysproc.Info{PID: 70, PPID: 1, Name: "consent.exe"})
	})

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusManualInterventionRequired, res.Status)
	assert.Equal(t, RemarkUAC, res.Remarks)
	assert.Equal(t, []string{result.UACWindowMarker}, res.AssociatedWindowTitles)
	assert.Empty(t, e.table.Signals(), "no teardown while UAC is up")
	assert.Empty(t, e.wins.Closed())
}

func TestNothingOpened(t *testing.T) {
	e := newEnv(t, nil)

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusFailed, res.Status)
	assert.Equal(t, RemarkNoWindow, res.Remarks)
	assert.Equal(t, 10*time.Second, res.Duration)
}

func TestUnmatchedWindowsMostlyPass(t *testing.T) {
	e := newEnv(t, func(e *env) {
		e.table.Add(sysproc.Info{PID: 80, PPID: 4, Name: "setup.exe"})
		e.wins.Add(window.Window{Handle: 20, Title: "Installer", PID: 80})
	})

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusMostlyPass, res.Status)
	assert.Equal(t, RemarkUnmatched, res.Remarks)
	assert.Equal(t, []string{"Installer"}, res.AssociatedWindowTitles)
	assert.Equal(t, []string{"Installer"}, res.ClosedWindowTitles)
	assert.Equal(t, []string{"setup.exe"}, res.TerminatedExecutableNames)
}

func TestHeadlessProcess(t *testing.T) {
	e := newEnv(t, func(e *env) {
		e.table.Add(sysproc.Info{PID: 90, PPID: 4, Name: "notepad.exe"})
	})

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, detector.MatchedByProcess, res.DetectedBy)
	assert.Empty(t, res.AssociatedWindowTitles)
	assert.Equal(t, []string{"notepad.exe"}, res.TerminatedExecutableNames)
}

func TestProcessSurvivesTeardown(t *testing.T) {
	e := newEnv(t, func(e *env) {
		openNotepad(e)
		e.table.SetError(50, sysproc.ErrAccessDenied)
	})

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusMostlyPass, res.Status)
	assert.Equal(t, RemarkSurvived, res.Remarks)
	assert.NotContains(t, res.TerminatedExecutableNames, "notepad.exe")
}

func TestProtectedOwnerIsLeftAlone(t *testing.T) {
	e := newEnv(t, func(e *env) {
		e.wins.Add(window.Window{Handle: 30, Title: "Documents", PID: 4})
	})
	tc := result.NewTestCase(lnk, `C:\Windows\explorer.exe`)

	res := e.orch.Run(context.Background(), tc)
	assert.Equal(t, result.StatusMostlyPass, res.Status)
	assert.Equal(t, RemarkProtected, res.Remarks)
	assert.Equal(t, []string{"Documents"}, res.AssociatedWindowTitles)
	assert.Empty(t, res.ClosedWindowTitles)
	assert.Empty(t, res.TerminatedExecutableNames)
	assert.True(t, e.table.Running(context.Background(), 4))
	assert.Empty(t, e.wins.Closed())
}

func TestRootExitsWithinGrace(t *testing.T) {
	var exitAt time.Time
	e := newEnv(t, openNotepad)
	e.table.SetStubborn(50)
	e.table.OnSignal = func(s sysproc.Signal) {
		if s.PID == 50 && !s.Kill && exitAt.IsZero() {
			exitAt = e.clk.Now().Add(time.Second)
		}
	}
	e.clk.OnSleep = func(now time.Time) {
		if !exitAt.IsZero() && !now.Before(exitAt) {
			e.table.Remove(50)
		}
	}

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Contains(t, res.TerminatedExecutableNames, "notepad.exe")
	for _, sig := range e.table.Signals() {
		assert.False(t, sig.Kill && sig.PID == 50, "root must not be killed while it is still exiting")
	}
	assert.False(t, e.table.Running(context.Background(), 50))
}

func TestRootKilledAfterGrace(t *testing.T) {
	e := newEnv(t, openNotepad)
	e.table.SetStubborn(50)

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusSuccess, res.Status)
	var kills []int32
	for _, sig := range e.table.Signals() {
		if sig.Kill {
			kills = append(kills, sig.PID)
		}
	}
	assert.Equal(t, []int32{50}, kills)
	assert.GreaterOrEqual(t, e.clk.Slept(), 5*time.Second+5*time.Second, "additional wait plus the full grace")
}

func TestUACReportsInterception(t *testing.T) {
	e := newEnv(t, func(e *env) {
		e.table.Add(sysproc.Info{PID: 70, PPID: 1, Name: "consent.exe"})
	})
	c := &caseRun{
		tc:    e.tc,
		res:   result.NewTestResult(e.tc),
		state: StateInit,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := e.orch.run(context.Background(), c)
	assert.ErrorIs(t, err, result.ErrInterceptedByOS)
	assert.Equal(t, result.StatusManualInterventionRequired, c.res.Status)
	assert.Equal(t, StateDone, c.state)
}

func TestPanicBecomesFailure(t *testing.T) {
	e := newEnv(t, func(*env) { panic("shell exploded") })

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusFailed, res.Status)
	assert.Equal(t, "Exception occurred: shell exploded", res.Remarks)
}

func TestLaunchErrorIsNotFatal(t *testing.T) {
	e := newEnv(t, openNotepad)
	e.launch.Err = assert.AnError

	res := e.orch.Run(context.Background(), e.tc)
	assert.Equal(t, result.StatusSuccess, res.Status)
}
