// Package runner drives a batch of application tests one at a time.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/launchcheck/internal/clock"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/history"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/result"
)

const (
	DefaultInterTestDelay = time.Second
	sinkTimeout           = 5 * time.Second
)

// ProgressSink is told when each case starts. index is 1-based.
type ProgressSink interface {
	OnProgress(index, total int, name string)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(index, total int, name string)

func (f ProgressFunc) OnProgress(index, total int, name string) { f(index, total, name) }

// CaseRunner tests a single application.
type CaseRunner interface {
	Run(ctx context.Context, tc result.TestCase) result.TestResult
}

// Status is a point-in-time view of the batch, safe to hand to other
// goroutines.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Cancelled bool      `json:"cancelled"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Current   string    `json:"current,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Completed int       `json:"completed"`
}

type Runner struct {
	Cases          CaseRunner
	Control        *control.RunControl
	Clock          clock.Clock
	Logger         *slog.Logger
	Progress       ProgressSink
	Sinks          []history.Sink
	InterTestDelay time.Duration
	PausePoll      time.Duration

	mu      sync.Mutex
	status  Status
	results []result.TestResult
}

func New(cases CaseRunner, ctrl *control.RunControl, clk clock.Clock, logger *slog.Logger) *Runner {
	if ctrl == nil {
		ctrl = control.New()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Cases:          cases,
		Control:        ctrl,
		Clock:          clk,
		Logger:         logger,
		InterTestDelay: DefaultInterTestDelay,
		PausePoll:      control.DefaultPausePoll,
	}
}

// Run tests cases in order and returns one result per case it started.
// It stops before the next case once the run is cancelled and then
// returns the results so far together with control.ErrCancelled.
func (r *Runner) Run(ctx context.Context, cases []result.TestCase) ([]result.TestResult, error) {
	runID := uuid.NewString()
	total := len(cases)
	log := r.Logger.With("run_id", runID)

	r.mu.Lock()
	r.status = Status{RunID: runID, Running: true, Total: total, StartedAt: r.Clock.Now()}
	r.results = nil
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.status.Running = false
		r.status.Current = ""
		r.mu.Unlock()
	}()

	log.Info("starting batch", "cases", total)
	results := make([]result.TestResult, 0, total)
	for i, tc := range cases {
		if r.stopped(ctx) {
			log.Info("batch cancelled", "completed", len(results), "total", total)
			return results, control.ErrCancelled
		}
		if paused := r.Control.WaitWhilePaused(r.Clock, r.PausePoll); paused > 0 {
			log.Info("batch resumed", "paused", paused)
		}
		if r.stopped(ctx) {
			log.Info("batch cancelled", "completed", len(results), "total", total)
			return results, control.ErrCancelled
		}

		r.mu.Lock()
		r.status.Index = i + 1
		r.status.Current = tc.DisplayName
		r.mu.Unlock()
		if r.Progress != nil {
			r.Progress.OnProgress(i+1, total, tc.DisplayName)
		}
		metrics.SetProgress(i+1, total)

		res := r.Cases.Run(ctx, tc)
		results = append(results, res)

		r.mu.Lock()
		r.results = append(r.results, res)
		r.status.Completed = len(r.results)
		r.mu.Unlock()

		r.publish(ctx, log, history.Event{RunID: runID, Seq: i + 1, OccurredAt: r.Clock.Now(), Result: res})

		if i < total-1 {
			r.Clock.Sleep(r.InterTestDelay)
		}
	}
	log.Info("batch finished", "cases", total)
	return results, nil
}

// Status reports the current batch position and control flags.
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := r.status
	r.mu.Unlock()
	st.Paused = r.Control.Paused()
	st.Cancelled = r.Control.Cancelled()
	return st
}

// Results returns a copy of the results of the current or last batch.
func (r *Runner) Results() []result.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result.TestResult(nil), r.results...)
}

func (r *Runner) stopped(ctx context.Context) bool {
	return r.Control.Cancelled() || ctx.Err() != nil
}

// publish fans a result out to every sink. Sink failures never affect the
// run.
func (r *Runner) publish(ctx context.Context, log *slog.Logger, e history.Event) {
	for _, s := range r.Sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := s.Send(sctx, e); err != nil {
			log.Warn("history sink send failed", "seq", e.Seq, "error", err)
		}
		cancel()
	}
}
