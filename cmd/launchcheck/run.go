package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/launchcheck"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/orchestrator"
	"github.com/loykin/launchcheck/internal/report"
	"github.com/loykin/launchcheck/internal/runner"
	"github.com/spf13/cobra"
)

// RunFlags override the inventory and report locations of the config.
type RunFlags struct {
	Launchers   string
	Executables string
	Output      string
}

func createRunCommand(globalFlags *GlobalFlags, flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Test every application in the inventory",
		Long: `Test every application in the inventory, one at a time, and write the
report. Interrupt once to cancel after the current application, twice to
abort it.

Examples:
  launchcheck run
  launchcheck run --launchers lists/shortcuts.txt --executables lists/executables.txt
  launchcheck run --output results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), globalFlags, flags, cmd.OutOrStdout(), orchestrator.Deps{})
		},
	}
	cmd.Flags().StringVar(&flags.Launchers, "launchers", "", "launcher list file (default from config)")
	cmd.Flags().StringVar(&flags.Executables, "executables", "", "aligned target list file (default from config)")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "report path; .csv, .json or .yaml (default from config)")
	return cmd
}

func runTests(ctx context.Context, globalFlags *GlobalFlags, flags *RunFlags, out io.Writer, host orchestrator.Deps) error {
	cfg, err := loadConfig(globalFlags)
	if err != nil {
		return err
	}
	if flags.Launchers != "" {
		cfg.Inventory.Launchers = flags.Launchers
	}
	if flags.Executables != "" {
		cfg.Inventory.Executables = flags.Executables
	}
	if flags.Output != "" {
		cfg.ReportOutput = flags.Output
	}

	log, closer := setupLogger(cfg, out)
	defer func() { _ = closer.Close() }()

	tester, err := launchcheck.New(cfg, launchcheck.Options{
		Logger: log,
		Host:   host,
		Progress: runner.ProgressFunc(func(index, total int, name string) {
			_, _ = fmt.Fprintf(out, "[%d/%d] Testing: %s\n", index, total, name)
		}),
	})
	if err != nil {
		return err
	}
	defer func() { _ = tester.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleSignals(tester.Control(), cancel, log)
	defer stopSignals()

	results, err := tester.Run(ctx)
	_, _ = fmt.Fprintf(out, "Tested %d applications: %s\n", len(results), report.Summarize(results))
	if errors.Is(err, control.ErrCancelled) {
		_, _ = fmt.Fprintln(out, orchestrator.RemarkCancelled)
		return nil
	}
	return err
}

// handleSignals cancels the batch on the first interrupt and aborts the
// current application on the second.
func handleSignals(ctrl *control.RunControl, abort context.CancelFunc, log *slog.Logger) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		n := 0
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				n++
				if n == 1 {
					log.Warn("cancelling after the current application; interrupt again to abort it", "signal", sig.String())
					ctrl.Cancel()
					continue
				}
				log.Warn("aborting current application", "signal", sig.String())
				abort()
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
