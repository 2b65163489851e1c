package main

import (
	"fmt"
	"io"

	"github.com/loykin/launchcheck/internal/inventory"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// CollectFlags control which launcher trees are walked.
type CollectFlags struct {
	Roots   []string
	Exts    []string
	Out     string
	Resolve bool
	Targets string
}

// ResolveFlags name the list files of the resolve command.
type ResolveFlags struct {
	Launchers string
	Targets   string
}

func createCollectCommand(globalFlags *GlobalFlags, flags *CollectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect launchers from the application menus",
		Long: `Walk the application menus (Start Menu on Windows, XDG applications
directories elsewhere) and write one launcher per line, with "[Folder]"
lines for directories.

Examples:
  launchcheck collect
  launchcheck collect --root ./menu --ext .lnk --out shortcuts.txt --resolve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(globalFlags, flags, afero.NewOsFs(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&flags.Roots, "root", nil, "directory to walk (repeatable; default from config or platform menus)")
	cmd.Flags().StringSliceVar(&flags.Exts, "ext", nil, "launcher extension to collect (repeatable)")
	cmd.Flags().StringVar(&flags.Out, "out", "", "launcher list to write (default inventory.launchers)")
	cmd.Flags().BoolVar(&flags.Resolve, "resolve", false, "also resolve targets into the executables list")
	cmd.Flags().StringVar(&flags.Targets, "targets", "", "target list to write with --resolve (default inventory.executables)")
	return cmd
}

func createResolveCommand(globalFlags *GlobalFlags, flags *ResolveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve each launcher to the executable it starts",
		Long: `Read the launcher list and write the aligned target list. Launchers
that cannot be resolved are written as "[Unresolved]".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(globalFlags, flags, afero.NewOsFs(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.Launchers, "launchers", "", "launcher list to read (default inventory.launchers)")
	cmd.Flags().StringVar(&flags.Targets, "targets", "", "target list to write (default inventory.executables)")
	return cmd
}

func runCollect(globalFlags *GlobalFlags, flags *CollectFlags, fs afero.Fs, out io.Writer) error {
	cfg, err := loadConfig(globalFlags)
	if err != nil {
		return err
	}
	log, closer := setupLogger(cfg, out)
	defer func() { _ = closer.Close() }()

	roots := firstNonEmpty(flags.Roots, cfg.Inventory.Roots, inventory.DefaultRoots())
	exts := firstNonEmpty(flags.Exts, cfg.Inventory.Extensions, inventory.DefaultExtensions())
	launchersPath := orDefault(flags.Out, cfg.Inventory.Launchers)

	lines, err := inventory.Collect(fs, roots, exts)
	if err != nil {
		return err
	}
	if err := inventory.WriteLines(fs, launchersPath, lines); err != nil {
		return fmt.Errorf("write %s: %w", launchersPath, err)
	}
	log.Info("launchers collected", "path", launchersPath, "entries", len(lines), "roots", roots)

	if !flags.Resolve {
		return nil
	}
	targetsPath := orDefault(flags.Targets, cfg.Inventory.Executables)
	targets := inventory.NewResolver(fs, log).ResolveLines(lines)
	if err := inventory.WriteLines(fs, targetsPath, targets); err != nil {
		return fmt.Errorf("write %s: %w", targetsPath, err)
	}
	log.Info("targets resolved", "path", targetsPath)
	return nil
}

func runResolve(globalFlags *GlobalFlags, flags *ResolveFlags, fs afero.Fs, out io.Writer) error {
	cfg, err := loadConfig(globalFlags)
	if err != nil {
		return err
	}
	log, closer := setupLogger(cfg, out)
	defer func() { _ = closer.Close() }()

	launchersPath := orDefault(flags.Launchers, cfg.Inventory.Launchers)
	targetsPath := orDefault(flags.Targets, cfg.Inventory.Executables)

	lines, err := inventory.ReadLines(fs, launchersPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", launchersPath, err)
	}
	targets := inventory.NewResolver(fs, log).ResolveLines(lines)
	if err := inventory.WriteLines(fs, targetsPath, targets); err != nil {
		return fmt.Errorf("write %s: %w", targetsPath, err)
	}
	log.Info("targets resolved", "path", targetsPath, "entries", len(targets))
	return nil
}
