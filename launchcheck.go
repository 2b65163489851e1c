// Package launchcheck tests that desktop applications start, show a window
// and shut down cleanly, one launcher at a time.
package launchcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/launchcheck/internal/config"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/history"
	"github.com/loykin/launchcheck/internal/history/factory"
	"github.com/loykin/launchcheck/internal/inventory"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/orchestrator"
	"github.com/loykin/launchcheck/internal/report"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// Re-export core types for external consumers.

type TestCase = result.TestCase

type TestResult = result.TestResult

type Status = result.Status

type Config = config.Config

type RunControl = control.RunControl

type HistorySink = history.Sink

type Summary = report.Summary

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Options override the host-facing collaborators. The zero value tests real
// applications on the local desktop.
type Options struct {
	Logger   *slog.Logger
	Progress runner.ProgressSink
	// Host replaces process, window, launcher and clock access. Its Fs,
	// Control and Logger fields are ignored in favour of the ones below.
	Host orchestrator.Deps
	Fs   afero.Fs
	// Sinks are used in addition to the configured history DSNs.
	Sinks []history.Sink
}

// Tester wires configuration, inventory, the per-application orchestrator
// and history sinks into one runnable batch.
type Tester struct {
	cfg     *Config
	log     *slog.Logger
	fs      afero.Fs
	ctrl    *control.RunControl
	runner  *runner.Runner
	service *runner.Service
	sinks   []history.Sink
}

func New(cfg *Config, opts Options) (*Tester, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	t := &Tester{cfg: cfg, log: opts.Logger, fs: opts.Fs, ctrl: control.New()}

	sinks := append([]history.Sink(nil), opts.Sinks...)
	for _, dsn := range cfg.History {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	t.sinks = sinks

	deps := opts.Host
	deps.Fs = t.fs
	deps.Control = t.ctrl
	deps.Logger = t.log
	orch := orchestrator.New(settings, deps)

	t.runner = runner.New(orch, t.ctrl, deps.Clock, t.log)
	t.runner.InterTestDelay = cfg.InterTestDelay()
	t.runner.Progress = opts.Progress
	t.runner.Sinks = sinks
	t.service = runner.NewService(t.runner, t.LoadCases, t.finish)
	return t, nil
}

// Control is the pause/cancel switch shared by every entry point.
func (t *Tester) Control() *RunControl { return t.ctrl }

// Service runs batches in the background for the control API and scheduler.
func (t *Tester) Service() *runner.Service { return t.service }

// LoadCases reads the configured launcher and target lists.
func (t *Tester) LoadCases(context.Context) ([]TestCase, error) {
	return inventory.LoadPairs(t.fs, t.cfg.Inventory.Launchers, t.cfg.Inventory.Executables)
}

// Run tests every configured case in the foreground and writes the report,
// also when the batch was cancelled part way.
func (t *Tester) Run(ctx context.Context) ([]TestResult, error) {
	cases, err := t.LoadCases(ctx)
	if err != nil {
		return nil, err
	}
	results, runErr := t.runner.Run(ctx, cases)
	if err := t.WriteReport(results); err != nil {
		return results, errors.Join(runErr, err)
	}
	return results, runErr
}

// WriteReport saves results to report_output; an empty path disables it.
func (t *Tester) WriteReport(results []TestResult) error {
	if t.cfg.ReportOutput == "" {
		return nil
	}
	if err := report.Write(t.fs, t.cfg.ReportOutput, results); err != nil {
		return err
	}
	t.log.Info("report written", "path", t.cfg.ReportOutput, "summary", report.Summarize(results).String())
	return nil
}

func (t *Tester) finish(results []TestResult, err error) {
	if err != nil && !errors.Is(err, control.ErrCancelled) {
		t.log.Error("batch failed", "error", err)
	}
	if werr := t.WriteReport(results); werr != nil {
		t.log.Error("failed to write report", "error", werr)
	}
}

// Close releases history sink connections.
func (t *Tester) Close() error { return closeSinks(t.sinks) }

func closeSinks(sinks []history.Sink) error {
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
