package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/you-humble/resinkit/internal/app"
	"github.com/you-humble/resinkit/internal/watcher"
	"github.com/you-humble/resinkit/pkg/domain"
)

const shutdownTimeout = 15 * time.Second

type runFunc func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error

type cli struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "resinkit",
		Short:        "Submit and inspect tasks on a ResinKit agent",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", os.Getenv("RESINKIT_CONFIG"),
		"path to a yaml config (RESINKIT_* variables override it)")

	root.AddCommand(
		c.submitCmd(),
		c.submitYAMLCmd(),
		c.getCmd(),
		c.statusCmd(),
		c.resultsCmd(),
		c.logsCmd(),
		c.listCmd(),
		c.cancelCmd(),
		c.watchCmd(),
		c.deleteCmd(),
		c.trackedCmd(),
		c.artifactCmd(),
		c.varsCmd(),
	)
	return root
}

// run builds the app for a single command and always closes it, so pending
// uploads drain even when the command fails.
func (c *cli) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(c.cfgPath)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				slog.Warn("shutdown", slog.String("error", err.Error()))
			}
		}()
		return fn(ctx, cmd, a, args)
	}
}

// exitCode checks the result sentinels first: a missing results resource
// wraps ErrNotFound under ErrNoResults.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoResults), errors.Is(err, domain.ErrNoQueryResults):
		return 5
	case errors.Is(err, domain.ErrNotFound):
		return 3
	case errors.Is(err, domain.ErrIncompleteTask), errors.Is(err, watcher.ErrWatchTimeout):
		return 4
	default:
		return 1
	}
}
