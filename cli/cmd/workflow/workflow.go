package workflow

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/workflowkit/cli/cmd"
	"github.com/compozy/workflowkit/cli/helpers"
)

// Cmd returns the workflows command group.
func Cmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Short:   "Inspect and run workflows",
	}
	root.AddCommand(listCmd(), graphCmd(), RunCmd())
	return root
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows known to the server",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: listJSON, Text: listText}, args)
		},
	}
}

func loadNames(ctx context.Context, executor *cmd.CommandExecutor) ([]string, error) {
	catalog, err := executor.Stores().Workflows()
	if err != nil {
		return nil, err
	}
	if err := catalog.Sync(ctx); err != nil {
		return nil, err
	}
	if st := catalog.Snapshot(); st.LoadingError != "" {
		return nil, fmt.Errorf("failed to list workflows: %s", st.LoadingError)
	}
	return catalog.Names(), nil
}

func listJSON(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	names, err := loadNames(ctx, executor)
	if err != nil {
		return err
	}
	return executor.Output().WriteJSON(map[string]any{"workflows": names})
}

func listText(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	names, err := loadNames(ctx, executor)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name})
	}
	return executor.Output().WriteTable([]string{"WORKFLOW"}, rows)
}

func graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <name>",
		Short: "Show the execution graph of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: graph}, args)
		},
	}
}

func graph(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	wf, err := executor.Stores().Workflow(args[0])
	if err != nil {
		return err
	}
	if err := wf.Sync(ctx); err != nil {
		return err
	}
	st := wf.Snapshot()
	if st.LoadingError != "" {
		return helpers.NewCliError("GRAPH_UNAVAILABLE", fmt.Sprintf("Failed to load graph for %s", st.Name), st.LoadingError)
	}
	return executor.Output().WriteJSON(st)
}
