package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/you-humble/resinkit/internal/app"
	"github.com/you-humble/resinkit/internal/render"
	"github.com/you-humble/resinkit/pkg/domain"
)

func (c *cli) varsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Manage agent variables",
	}

	var description string
	set := &cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Create or replace a variable",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			client, err := a.API()
			if err != nil {
				return err
			}
			v, err := client.CreateVariable(ctx, domain.Variable{Name: args[0], Value: args[1], Description: description})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.Name)
			return nil
		}),
	}
	set.Flags().StringVar(&description, "description", "", "variable description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List variables (values are not shown)",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
				client, err := a.API()
				if err != nil {
					return err
				}
				vars, err := client.ListVariables(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), render.Variables(vars))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "get NAME",
			Short: "Print a variable value",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
				client, err := a.API()
				if err != nil {
					return err
				}
				v, err := client.Variable(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.Value)
				return nil
			}),
		},
		set,
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a variable",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, _ *cobra.Command, a *app.App, args []string) error {
				client, err := a.API()
				if err != nil {
					return err
				}
				return client.DeleteVariable(ctx, args[0])
			}),
		},
	)
	return cmd
}
