// Package cron fires test batches on a cron schedule.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/loykin/launchcheck/internal/runner"
	"github.com/robfig/cron/v3"
)

// Trigger starts a batch and returns runner.ErrBusy while one is running.
type Trigger interface {
	Trigger(ctx context.Context) error
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a standard five-field expression, an optional
// leading seconds field, or a descriptor such as "@daily" or "@every 1h".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("cron schedule is empty")
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return s, nil
}

// Scheduler triggers a batch on every tick. Ticks that arrive while a
// batch is still running are skipped, not queued.
type Scheduler struct {
	expr    string
	trigger Trigger
	logger  *slog.Logger
	c       *cron.Cron
	ctx     context.Context

	fired   atomic.Int64
	skipped atomic.Int64
}

func New(expr string, t Trigger, logger *slog.Logger) (*Scheduler, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		expr:    expr,
		trigger: t,
		logger:  logger.With("schedule", expr),
		c:       cron.New(cron.WithParser(parser)),
		ctx:     context.Background(),
	}
	s.c.Schedule(sched, cron.FuncJob(s.tick))
	return s, nil
}

// Start begins firing. Batches run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.c.Start()
	s.logger.Info("batch schedule started")
}

// Stop halts the schedule. The returned context is done once a tick in
// progress has returned; the batch it started keeps running.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}

// Fired and Skipped count ticks that started a batch and ticks that found
// one already running.
func (s *Scheduler) Fired() int64   { return s.fired.Load() }
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) tick() {
	err := s.trigger.Trigger(s.ctx)
	switch {
	case err == nil:
		s.fired.Add(1)
		s.logger.Info("scheduled batch started")
	case errors.Is(err, runner.ErrBusy):
		s.skipped.Add(1)
		s.logger.Info("skipping scheduled batch, previous one still running")
	default:
		s.logger.Error("scheduled batch failed to start", "error", err)
	}
}
