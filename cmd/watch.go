package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/project"
	"github.com/conneroisu/plctool/internal/watcher"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		flags    *StandardFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:     "watch <project>",
		Aliases: []string{"w"},
		Short:   "Re-run update whenever the project or a linked library changes",
		Long: `Run update once, then again each time the project file or one of its linked
libraries changes. Bursts of changes are debounced into a single run. The
set of watched libraries follows the project as links are added or removed.

Press Ctrl+C to stop.

Examples:
  plctool watch machine.ppjs -o build/machine.ppjs
  plctool watch machine.ppjs -o build/machine.ppjs --debounce 1s -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return err
			}
			if err := flags.Apply(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("debounce") {
				cfg.Watch.Debounce = debounce
			}
			if flags.Output == "" {
				return fmt.Errorf("an output file is required (-o)")
			}
			if err := ValidateFileExists(args[0]); err != nil {
				return err
			}
			paths, err := absPaths([]string{args[0], flags.Output})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return watchProject(ctx, paths[0], paths[1], watchOptions{
				Force:    cfg.Update.Force,
				Debounce: cfg.Watch.Debounce,
				Logger:   logger,
				Report: func(o errors.Outcome) {
					if err := writeReport(out, flags.Report, newReport("update", []errors.Outcome{o}), flags); err != nil {
						logger.Error(ctx, err, "Cannot write report")
					}
				},
			})
		},
	}

	flags = AddStandardFlags(cmd, "run", "report")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Delay that groups bursts of changes")
	return cmd
}

type watchOptions struct {
	Force    bool
	Debounce time.Duration
	Logger   logging.Logger
	// Report receives the outcome of every run.
	Report func(errors.Outcome)
}

// watchProject updates the project once and then on every relevant change
// until ctx is done. Runs happen one at a time. Once a run succeeded the
// output belongs to the watch and is replaced without force.
func watchProject(ctx context.Context, projectPath, outputPath string, opts watchOptions) error {
	log := logging.OrNop(opts.Logger).WithComponent("watch")
	report := opts.Report
	if report == nil {
		report = func(errors.Outcome) {}
	}

	fw, err := watcher.NewFileWatcher(opts.Debounce, log)
	if err != nil {
		return errors.WrapIO(err, "cannot start file watcher")
	}
	defer fw.Stop()

	targets := watcher.NewPathSet(projectPath)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(targets.Contains)

	force := opts.Force
	run := func(ctx context.Context) {
		outcome := project.Update(ctx, projectPath, outputPath, project.Options{Force: force, Logger: log})
		if outcome.Err == nil {
			force = true
		}
		report(outcome)
		follow(ctx, fw, targets, projectPath, log)
	}

	if err := fw.AddPath(projectPath); err != nil {
		return errors.WrapIO(err, "cannot watch project")
	}
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, event := range events {
			log.Info(ctx, "Change detected", "path", event.Path, "type", event.Type.String())
		}
		run(ctx)
		return nil
	})

	run(ctx)
	if err := fw.Start(ctx); err != nil {
		return errors.WrapIO(err, "cannot start file watcher")
	}
	log.Info(ctx, "Watching", "project", projectPath, "dirs", len(fw.WatchedDirs()))

	<-ctx.Done()
	return nil
}

// follow points the watcher at the libraries the project currently links.
func follow(ctx context.Context, fw *watcher.FileWatcher, targets *watcher.PathSet, projectPath string, log logging.Logger) {
	libs, err := project.LinkedPaths(projectPath)
	if err != nil {
		log.Debug(ctx, "Cannot list linked libraries", "error", err.Error())
		return
	}
	targets.Set(append([]string{projectPath}, libs...))
	for _, lib := range libs {
		if err := fw.AddPath(lib); err != nil {
			log.Warn(ctx, err, "Cannot watch library", "path", lib)
		}
	}
}
