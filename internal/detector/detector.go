// Package detector decides whether launching an application produced a
// window or a process, polling until a time budget runs out.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/snapshot"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
)

// OutcomeKind classifies a detection.
type OutcomeKind int

const (
	TimedOut OutcomeKind = iota
	Found
	FoundHeadless
	UACIntercepted
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Found:
		return "found"
	case FoundHeadless:
		return "found_headless"
	case UACIntercepted:
		return "uac_intercepted"
	case Cancelled:
		return "cancelled"
	default:
		return "timed_out"
	}
}

// Outcome is the result of Detect. Window is set for Found, PID for Found
// and FoundHeadless, Unmatched for TimedOut when new windows appeared but
// none could be attributed to the launch.
type Outcome struct {
	Kind      OutcomeKind
	Window    *window.Window
	PID       int32
	Unmatched []window.Window
	MatchedBy string
}

// Request carries the baselines taken before the launch.
type Request struct {
	BaselineProcesses  snapshot.ProcessSnapshot
	BaselineWindows    snapshot.WindowSnapshot
	ExpectedExecutable string
	DisplayName        string
}

// Settings are the timing and naming knobs of a Detector.
type Settings struct {
	MaxWait         time.Duration
	PollInterval    time.Duration
	PostDetectPause time.Duration
	PausePoll       time.Duration
	Aliases         Aliases
	UACProcessName  string
}

type Detector struct {
	Settings
	Table    sysproc.Table
	Windows  window.System
	Control  *control.RunControl
	Clock    clock.Clock
	Logger   *slog.Logger
	Matchers []Matcher
}

func New(s Settings, table sysproc.Table, wins window.System, ctrl *control.RunControl, clk clock.Clock, logger *slog.Logger) *Detector {
	if s.PausePoll <= 0 {
		s.PausePoll = control.DefaultPausePoll
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ctrl == nil {
		ctrl = control.New()
	}
	return &Detector{
		Settings: s,
		Table:    table,
		Windows:  wins,
		Control:  ctrl,
		Clock:    clk,
		Logger:   logger,
		Matchers: DefaultMatchers(),
	}
}

// Detect polls for new windows until one matches, the user cancels, UAC
// takes over the desktop or MaxWait of unpaused time has elapsed.
func (d *Detector) Detect(ctx context.Context, req Request) Outcome {
	target := Target{Executable: d.Aliases.Resolve(req.ExpectedExecutable), DisplayName: req.DisplayName}
	uac := sysproc.NewNameSet(d.UACProcessName)
	log := d.Logger.With("app", req.DisplayName, "expected", target.Executable)

	deadline := d.Clock.Now().Add(d.MaxWait)
	var unmatched []window.Window
	for {
		if d.Control.Cancelled() || ctx.Err() != nil {
			return Outcome{Kind: Cancelled}
		}
		if d.Control.Paused() {
			paused := d.Control.WaitWhilePaused(d.Clock, d.PausePoll)
			deadline = deadline.Add(paused)
			log.Debug("detection resumed", "paused", paused)
			continue
		}

		procs, err := d.Table.List(ctx)
		if err != nil {
			log.Warn("list processes", "error", err)
		}
		if len(uac) > 0 && anyNamed(procs, uac) {
			log.Info("launch intercepted by UAC prompt")
			return Outcome{Kind: UACIntercepted}
		}

		cur, err := snapshot.CaptureWindows(ctx, d.Windows)
		if err != nil {
			log.Warn("capture windows", "error", err)
		}
		fresh := snapshot.NewWindows(req.BaselineWindows, cur)
		if out, ok := d.match(ctx, target, fresh); ok {
			log.Info("window detected", "title", out.Window.Title, "pid", out.PID, "by", out.MatchedBy)
			metrics.IncDetection(out.MatchedBy)
			d.Clock.Sleep(d.PostDetectPause)
			return out
		}
		unmatched = fresh

		if !d.Clock.Now().Before(deadline) {
			break
		}
		d.Clock.Sleep(d.PollInterval)
	}

	if len(unmatched) > 0 {
		log.Info("no matching window before deadline", "new_windows", len(unmatched))
		return Outcome{Kind: TimedOut, Unmatched: unmatched}
	}
	return d.headless(ctx, log, req.BaselineProcesses, target)
}

// match runs each matcher over every fresh window before moving to the
// next matcher, so an owner match always beats a title match.
func (d *Detector) match(ctx context.Context, t Target, fresh []window.Window) (Outcome, bool) {
	if len(fresh) == 0 {
		return Outcome{}, false
	}
	cands := make([]Candidate, len(fresh))
	for i, w := range fresh {
		cands[i] = Candidate{Window: w}
		if info, ok := d.Table.Lookup(ctx, w.PID); ok {
			cands[i].Owner = info.ExecutableName()
		}
	}
	for _, m := range d.Matchers {
		for _, c := range cands {
			if m.Match(t, c) {
				w := c.Window
				return Outcome{Kind: Found, Window: &w, PID: w.PID, MatchedBy: m.Name}, true
			}
		}
	}
	return Outcome{}, false
}

// headless looks for the expected executable among processes started
// since the baseline, for applications that never show a window.
func (d *Detector) headless(ctx context.Context, log *slog.Logger, base snapshot.ProcessSnapshot, t Target) Outcome {
	cur, err := snapshot.CaptureProcesses(ctx, d.Table)
	if err != nil {
		log.Warn("capture processes", "error", err)
		return Outcome{Kind: TimedOut}
	}
	want := sysproc.NewNameSet(t.Executable)
	for _, p := range snapshot.NewProcesses(base, cur) {
		if want.Contains(p.ExecutableName()) || want.Contains(p.Name) {
			log.Info("process detected without window", "pid", p.PID)
			metrics.IncDetection(MatchedByProcess)
			return Outcome{Kind: FoundHeadless, PID: p.PID, MatchedBy: MatchedByProcess}
		}
	}
	log.Info("no window or process detected")
	return Outcome{Kind: TimedOut}
}

func anyNamed(procs []sysproc.Info, names sysproc.NameSet) bool {
	for _, p := range procs {
		if names.Contains(p.Name) || names.Contains(p.ExecutableName()) {
			return true
		}
	}
	return false
}
