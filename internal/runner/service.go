package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/result"
)

var ErrBusy = errors.New("a batch is already running")

// CaseLoader returns the inventory for the next batch.
type CaseLoader func(ctx context.Context) ([]result.TestCase, error)

// FinishFunc observes the outcome of a triggered batch.
type FinishFunc func(results []result.TestResult, err error)

// Service lets long-running callers (control API, scheduler) start batches
// in the background. At most one batch runs at a time.
type Service struct {
	runner   *Runner
	load     CaseLoader
	onFinish FinishFunc

	running atomic.Bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastErr error
}

func NewService(r *Runner, load CaseLoader, onFinish FinishFunc) *Service {
	return &Service{runner: r, load: load, onFinish: onFinish}
}

func (s *Service) Control() *control.RunControl { return s.runner.Control }
func (s *Service) Status() Status               { return s.runner.Status() }
func (s *Service) Results() []result.TestResult { return s.runner.Results() }

// Running reports whether a triggered batch is still in progress.
func (s *Service) Running() bool { return s.running.Load() }

// LastError is the error of the most recently finished batch.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Trigger loads the inventory and starts a batch in the background. The
// control flags are cleared first so a batch cancelled earlier does not
// stop the new one. It returns ErrBusy while another batch runs.
func (s *Service) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	cases, err := s.load(ctx)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("load inventory: %w", err)
	}
	s.runner.Control.Reset()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		res, err := s.runner.Run(ctx, cases)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if s.onFinish != nil {
			s.onFinish(res, err)
		}
	}()
	return nil
}

// Wait blocks until the current batch, if any, has finished.
func (s *Service) Wait() { s.wg.Wait() }
