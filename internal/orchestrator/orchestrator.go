// Package orchestrator runs a single application test from launch to
// teardown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/launchcheck/internal/cleanup"
	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/detector"
	"github.com/loykin/launchcheck/internal/launcher"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/snapshot"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/terminator"
	"github.com/loykin/launchcheck/internal/window"
	"github.com/spf13/afero"
)

// State is a step of the per-application test.
type State string

const (
	StateInit             State = "Init"
	StateLaunching        State = "Launching"
	StateDetecting        State = "Detecting"
	StateUACIntercepted   State = "UACIntercepted"
	StateCancelled        State = "Cancelled"
	StateTimedOutNoWindow State = "TimedOutNoWindow"
	StateSettling         State = "Settling"
	StateClosing          State = "Closing"
	StateTerminating      State = "Terminating"
	StateSweeping         State = "Sweeping"
	StateDone             State = "Done"
)

const (
	RemarkSuccess      = "Application tested successfully."
	RemarkUnmatched    = "Expected application window not found, but other windows were handled."
	RemarkSurvived     = "Application was detected but its process did not exit after termination."
	RemarkUAC          = "Application triggered UAC prompt."
	RemarkProtected    = "Window owned by a protected process was left open."
	RemarkNoWindow     = "Application did not open any windows or detectable processes."
	RemarkCancelled    = "Testing cancelled by user."
	remarkNotFoundFmt  = "Launcher not found: %s"
	remarkExceptionFmt = "Exception occurred: %v"
	defaultSettle      = 2 * time.Second
	defaultAdditional  = 5 * time.Second
)

// Settings are the read-only knobs of a run, converted once from config.
type Settings struct {
	Detector        detector.Settings
	AdditionalWait  time.Duration
	PostCloseSettle time.Duration
	TerminateGrace  time.Duration
	Protected       sysproc.NameSet
	// SampleResources reads memory and thread counts of the detected
	// process after settling and publishes them as metrics.
	SampleResources bool
}

// Deps are the host-facing collaborators. Zero fields get production
// defaults where one exists.
type Deps struct {
	Table    sysproc.Table
	Windows  window.System
	Launcher launcher.Launcher
	Fs       afero.Fs
	Control  *control.RunControl
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Orchestrator struct {
	settings   Settings
	deps       Deps
	detector   *detector.Detector
	terminator *terminator.Terminator
	scanner    *cleanup.Scanner
}

func New(s Settings, d Deps) *Orchestrator {
	if d.Table == nil {
		d.Table = sysproc.NewGopsTable()
	}
	if d.Windows == nil {
		d.Windows = window.NewSystem()
	}
	if d.Launcher == nil {
		d.Launcher = launcher.New()
	}
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Control == nil {
		d.Control = control.New()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if s.AdditionalWait < 0 {
		s.AdditionalWait = defaultAdditional
	}
	if s.PostCloseSettle < 0 {
		s.PostCloseSettle = defaultSettle
	}
	term := terminator.New(d.Table, s.Protected, s.TerminateGrace, d.Clock, d.Logger)
	return &Orchestrator{
		settings:   s,
		deps:       d,
		detector:   detector.New(s.Detector, d.Table, d.Windows, d.Control, d.Clock, d.Logger),
		terminator: term,
		scanner:    cleanup.New(d.Table, d.Windows, term, d.Logger),
	}
}

// caseRun is the mutable state of one test.
type caseRun struct {
	tc    result.TestCase
	res   result.TestResult
	state State
	log   *slog.Logger

	baseProcs snapshot.ProcessSnapshot
	baseWins  snapshot.WindowSnapshot
	closed    result.Set
	killed    result.Set
}

// Run tests one application. It never returns an error: every failure,
// including a panic in a collaborator, is folded into the result.
func (o *Orchestrator) Run(ctx context.Context, tc result.TestCase) (res result.TestResult) {
	c := &caseRun{
		tc:    tc,
		res:   result.NewTestResult(tc),
		state: StateInit,
		log:   o.deps.Logger.With("app", tc.DisplayName),
	}
	start := o.deps.Clock.Now()
	c.res.StartedAt = start

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("exception during test", "panic", r)
			c.res.Status = result.StatusFailed
			c.res.Remarks = fmt.Sprintf(remarkExceptionFmt, r)
		}
		c.res.Duration = o.deps.Clock.Now().Sub(start)
		if c.state != StateDone {
			o.transition(c, StateDone)
		}
		metrics.RecordResult(c.res.Status.String(), c.res.Duration.Seconds())
		c.log.Info("test finished", "status", c.res.Status, "remarks", c.res.Remarks, "duration", c.res.Duration)
		res = c.res
	}()

	switch err := o.run(ctx, c); {
	case err == nil:
	case errors.Is(err, result.ErrInterceptedByOS), errors.Is(err, result.ErrDetectionTimeout):
		c.log.Warn("test did not complete", "error", err)
	default:
		c.log.Error("test failed", "error", err)
	}
	return c.res
}

func (o *Orchestrator) run(ctx context.Context, c *caseRun) error {
	c.log.Info("starting test", "launcher", c.tc.LauncherPath)

	// Init
	if o.deps.Control.Cancelled() {
		o.finish(c, StateCancelled, result.StatusCancelled, RemarkCancelled)
		return nil
	}
	if ok, _ := afero.Exists(o.deps.Fs, c.tc.LauncherPath); !ok {
		o.finish(c, StateDone, result.StatusFailed, fmt.Sprintf(remarkNotFoundFmt, c.res.LauncherFileName))
		return fmt.Errorf("%w: %s", result.ErrLauncherNotFound, c.tc.LauncherPath)
	}
	var err error
	if c.baseProcs, err = snapshot.CaptureProcesses(ctx, o.deps.Table); err != nil {
		o.finish(c, StateDone, result.StatusFailed, fmt.Sprintf(remarkExceptionFmt, err))
		return err
	}
	if c.baseWins, err = snapshot.CaptureWindows(ctx, o.deps.Windows); err != nil {
		o.finish(c, StateDone, result.StatusFailed, fmt.Sprintf(remarkExceptionFmt, err))
		return err
	}

	o.transition(c, StateLaunching)
	if err := o.deps.Launcher.Open(ctx, c.tc.LauncherPath); err != nil {
		// Detection decides whether the launch worked.
		c.log.Warn("launch reported an error", "error", err)
	}

	o.transition(c, StateDetecting)
	out := o.detector.Detect(ctx, detector.Request{
		BaselineProcesses:  c.baseProcs,
		BaselineWindows:    c.baseWins,
		ExpectedExecutable: c.tc.ExpectedExecutableName,
		DisplayName:        c.tc.DisplayName,
	})
	c.res.DetectedBy = out.MatchedBy

	switch out.Kind {
	case detector.UACIntercepted:
		c.res.AssociatedWindowTitles = []string{result.UACWindowMarker}
		o.finish(c, StateUACIntercepted, result.StatusManualInterventionRequired, RemarkUAC)
		return result.ErrInterceptedByOS
	case detector.Cancelled:
		o.finish(c, StateCancelled, result.StatusCancelled, RemarkCancelled)
		return nil
	case detector.TimedOut:
		if len(out.Unmatched) == 0 {
			o.finish(c, StateTimedOutNoWindow, result.StatusFailed, RemarkNoWindow)
			return result.ErrDetectionTimeout
		}
	}

	o.transition(c, StateSettling)
	o.deps.Clock.Sleep(o.settings.AdditionalWait)
	if out.PID > 0 && o.settings.SampleResources {
		if s, err := metrics.SampleApp(ctx, c.tc.DisplayName, out.PID); err == nil {
			c.log.Debug("resource sample", "pid", s.PID, "rss", s.RSSBytes, "threads", s.NumThreads)
		}
	}

	o.transition(c, StateClosing)
	leftOpen := false
	switch {
	case out.Window != nil:
		c.res.AssociatedWindowTitles = []string{out.Window.Title}
		leftOpen = !o.closeWindow(ctx, c, *out.Window)
	case len(out.Unmatched) > 0:
		for _, w := range out.Unmatched {
			c.res.AssociatedWindowTitles = append(c.res.AssociatedWindowTitles, w.Title)
			o.closeWindow(ctx, c, w)
		}
	}

	survived, signaled := false, false
	if out.PID > 0 {
		o.transition(c, StateTerminating)
		survived, signaled = o.terminate(ctx, c, out.PID)
	}

	o.transition(c, StateSweeping)
	o.deps.Clock.Sleep(o.settings.PostCloseSettle)
	residue := o.scanner.Sweep(ctx, c.baseProcs, c.baseWins)
	c.closed.Add(residue.Closed...)
	c.killed.Add(residue.Terminated...)
	c.res.ClosedWindowTitles = c.closed.Sorted()
	c.res.TerminatedExecutableNames = c.killed.Sorted()

	switch {
	case out.Kind == detector.TimedOut:
		o.finish(c, StateDone, result.StatusMostlyPass, RemarkUnmatched)
	case survived:
		o.finish(c, StateDone, result.StatusMostlyPass, RemarkSurvived)
	case leftOpen && !signaled:
		o.finish(c, StateDone, result.StatusMostlyPass, RemarkProtected)
	default:
		o.finish(c, StateDone, result.StatusSuccess, RemarkSuccess)
	}
	return nil
}

// closeWindow asks w to close unless its owner is protected. It reports
// false only when the window was deliberately left open.
func (o *Orchestrator) closeWindow(ctx context.Context, c *caseRun, w window.Window) bool {
	if owner, ok := o.deps.Table.Lookup(ctx, w.PID); ok && o.terminator.IsProtected(owner) {
		c.log.Info("window owned by protected process, leaving open", "title", w.Title, "owner", owner.Name)
		return false
	}
	switch err := o.deps.Windows.Close(ctx, w); {
	case err == nil:
		c.log.Info("closed application window", "title", w.Title)
		c.closed.Add(w.Title)
	case errors.Is(err, window.ErrGone):
		c.log.Debug("window already closed", "title", w.Title)
	default:
		c.log.Error("error closing application window", "title", w.Title, "error", err)
	}
	return true
}

// terminate tears down the detected process tree. The root gets the grace
// window to exit before it is killed. It reports whether the root survived
// and whether anything was signaled at all.
func (o *Orchestrator) terminate(ctx context.Context, c *caseRun, pid int32) (survived, signaled bool) {
	names := o.terminator.Terminate(ctx, pid, true)
	c.killed.Add(names...)
	signaled = len(names) > 0
	if !o.terminator.Alive(ctx, pid) {
		return false, signaled
	}
	if info, ok := o.deps.Table.Lookup(ctx, pid); ok && o.terminator.IsProtected(info) {
		return false, signaled
	}
	if o.terminator.WaitExit(ctx, pid) {
		return false, signaled
	}
	c.log.Warn("process still alive after grace, killing", "pid", pid)
	if o.terminator.Kill(ctx, pid) {
		signaled = true
	}
	o.deps.Clock.Sleep(100 * time.Millisecond)
	return o.terminator.Alive(ctx, pid), signaled
}

func (o *Orchestrator) finish(c *caseRun, to State, status result.Status, remarks string) {
	if to != StateDone {
		o.transition(c, to)
	}
	c.res.Status = status
	c.res.Remarks = remarks
	o.transition(c, StateDone)
}

func (o *Orchestrator) transition(c *caseRun, to State) {
	if c.state == to {
		return
	}
	c.log.Debug("state transition", "from", c.state, "to", to)
	metrics.RecordStateTransition(string(c.state), string(to))
	c.state = to
}
