package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/you-humble/resinkit/internal/app"
	"github.com/you-humble/resinkit/internal/infra/store/artifact"
	"github.com/you-humble/resinkit/internal/render"
	"github.com/you-humble/resinkit/pkg/domain"
)

func (c *cli) submitCmd() *cobra.Command {
	var (
		file    string
		sql     string
		name    string
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a task from a JSON config file or a Flink SQL statement",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if (file == "") == (sql == "") {
				return errors.New("exactly one of --file or --sql is required")
			}
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}

			if sql != "" {
				tc, err := uc.SubmitSQL(ctx, name, sql, timeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tc.ID())
				return nil
			}

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var req domain.SubmitRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if name != "" {
				req.Name = name
			}
			if timeout > 0 {
				req.TimeoutSeconds = timeout
			}
			tc, err := uc.Submit(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tc.ID())
			return nil
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON task config (- for stdin)")
	cmd.Flags().StringVar(&sql, "sql", "", "Flink SQL statement(s)")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "task timeout in seconds")
	return cmd
}

func (c *cli) submitYAMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-yaml FILE",
		Short: "Submit a YAML task config as is",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			tc, err := uc.SubmitYAML(ctx, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tc.ID())
			return nil
		}),
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			tc, err := uc.Task(args[0])
			if err != nil {
				return err
			}
			d, err := tc.Details(ctx, true)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Details(d, uc.Lifecycle()))
			return nil
		}),
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Print the task status",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			tc, err := uc.Task(args[0])
			if err != nil {
				return err
			}
			s, err := tc.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		}),
	}
}

func (c *cli) resultsCmd() *cobra.Command {
	var export string
	cmd := &cobra.Command{
		Use:   "results ID",
		Short: "Print query results of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			var format artifact.Format
			if export != "" {
				f, err := artifact.ParseFormat(export)
				if err != nil {
					return err
				}
				format = f
			}
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			rt, arts, err := uc.Results(ctx, args[0], format)
			if err != nil {
				return err
			}
			if len(arts) > 0 {
				fmt.Fprint(cmd.OutOrStdout(), render.Artifacts(arts, a.LocalPath))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Results(rt))
			return nil
		}),
	}
	cmd.Flags().StringVar(&export, "export", "", "write results to files instead (csv|json)")
	return cmd
}

func (c *cli) logsCmd() *cobra.Command {
	var q domain.LogQuery
	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Print one page of task logs",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			tc, err := uc.Task(args[0])
			if err != nil {
				return err
			}
			page, err := tc.Logs(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Logs(page))
			return nil
		}),
	}
	cmd.Flags().StringVar(&q.Level, "level", "", "minimum log level")
	cmd.Flags().StringVar(&q.LogToken, "token", "", "continuation token from a previous page")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		q                     domain.ListQuery
		status, after, before string
		tags                  []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks on the server",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			var err error
			if q.CreatedAfter, err = parseTime(after); err != nil {
				return fmt.Errorf("--created-after: %w", err)
			}
			if q.CreatedBefore, err = parseTime(before); err != nil {
				return fmt.Errorf("--created-before: %w", err)
			}
			q.Status = domain.Status(strings.ToUpper(status))
			q.TagsIncludeAny = tags

			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			page, err := uc.List(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.TaskList(page, uc.Lifecycle()))
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&q.TaskType, "type", "", "task type")
	f.StringVar(&status, "status", "", "task status")
	f.StringVar(&q.TaskNameContains, "name", "", "substring of the task name")
	f.StringSliceVar(&tags, "tag", nil, "match any of these tags")
	f.StringVar(&after, "created-after", "", "RFC 3339 time")
	f.StringVar(&before, "created-before", "", "RFC 3339 time")
	f.IntVar(&q.Limit, "limit", 0, "page size")
	f.StringVar(&q.PageToken, "page", "", "page token")
	f.StringVar(&q.SortBy, "sort-by", "", "sort field")
	f.StringVar(&q.SortOrder, "sort-order", "", "asc or desc")
	return cmd
}

func (c *cli) cancelCmd() *cobra.Command {
	var (
		reason string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Request cancellation (does not wait)",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			tc, err := uc.Task(args[0])
			if err != nil {
				return err
			}
			ack, err := tc.Cancel(ctx, reason, force)
			if err != nil {
				return err
			}
			out := fmt.Sprintf("%s %s", tc.ID(), ack.Status)
			if ack.Message != "" {
				out += ": " + ack.Message
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	cmd.Flags().BoolVar(&force, "force", false, "force cancellation")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID...",
		Short: "Poll tasks until each reaches a terminal status",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			outcomes, err := uc.Watch(ctx, args...)
			for _, o := range outcomes {
				line := o.TaskID + " " + render.Status(o.Details.Status, uc.Lifecycle())
				if o.Err != nil {
					line += "  " + o.Err.Error()
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return err
		}),
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Permanently delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			return uc.Delete(ctx, args[0])
		}),
	}
}

func (c *cli) trackedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tracked",
		Short: "List tasks submitted from this machine, newest first",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			uc, err := a.Usecase(ctx)
			if err != nil {
				return err
			}
			records, err := uc.Tracked(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Tracked(records, uc.Lifecycle()))
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of tasks")
	return cmd
}

func (c *cli) artifactCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "artifact FILE",
		Short: "Copy an exported result file to stdout or --output",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			rc, _, err := a.OpenArtifact(ctx, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.Copy(w, rc)
			return err
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
