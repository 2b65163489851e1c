package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/loykin/launchcheck"
	"github.com/loykin/launchcheck/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, &RunFlags{}),
		createCollectCommand(globalFlags, &CollectFlags{}),
		createResolveCommand(globalFlags, &ResolveFlags{}),
		createServeCommand(globalFlags, &ServeFlags{}),
		createPauseCommand(apiFlags),
		createResumeCommand(apiFlags),
		createCancelCommand(apiFlags),
		createStatusCommand(apiFlags),
		createTriggerCommand(apiFlags),
		createResultsCommand(apiFlags),
		createTokenCommand(globalFlags, &TokenFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "launchcheck",
		Short: "Launch, verify and close desktop applications",
		Long: `Launchcheck opens every application in a launcher inventory, waits for
its window or process, closes it again and reports what happened.

Examples:
  launchcheck collect --resolve          # build shortcuts.txt and executables.txt
  launchcheck run --output results.csv   # test every application
  launchcheck serve                      # control API, metrics and schedule
  launchcheck pause --api-url=http://host:8787/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML or YAML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return root
}

func loadConfig(flags *GlobalFlags) (*launchcheck.Config, error) {
	cfg, err := launchcheck.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	return cfg, nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *launchcheck.Config, console io.Writer) (*slog.Logger, io.Closer) {
	log, closer := logger.New(cfg.LoggerConfig(), console)
	slog.SetDefault(log)
	return log, closer
}
