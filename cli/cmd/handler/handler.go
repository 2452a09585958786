package handler

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/workflowkit/cli/cmd"
	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/engine/core"
	enginehandler "github.com/compozy/workflowkit/engine/handler"
	"github.com/compozy/workflowkit/engine/handlers"
)

// Cmd returns the handlers command group.
func Cmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "handlers",
		Aliases: []string{"handler", "h"},
		Short:   "Inspect and control workflow executions",
	}
	root.AddCommand(listCmd(), getCmd(), watchCmd(), cancelCmd(), sendCmd())
	return root
}

func listCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List handlers, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: listJSON, Text: listText}, args)
		},
	}
	c.Flags().StringSlice("workflow", nil, "Only handlers of these workflows")
	c.Flags().StringSlice("status", nil, "Only handlers in these statuses")
	return c
}

func queryFromFlags(c *cobra.Command) (handlers.Query, error) {
	names, err := c.Flags().GetStringSlice("workflow")
	if err != nil {
		return handlers.Query{}, err
	}
	raw, err := c.Flags().GetStringSlice("status")
	if err != nil {
		return handlers.Query{}, err
	}
	query := handlers.Query{WorkflowNames: names}
	for _, s := range raw {
		status, err := core.ParseRunStatus(s)
		if err != nil {
			return handlers.Query{}, helpers.NewCliError("INVALID_STATUS", fmt.Sprintf("unknown status %q", s))
		}
		query.Statuses = append(query.Statuses, status)
	}
	return query, nil
}

func loadCollection(ctx context.Context, c *cobra.Command, executor *cmd.CommandExecutor) (*handlers.Store, error) {
	query, err := queryFromFlags(c)
	if err != nil {
		return nil, err
	}
	coll, err := executor.Stores().Handlers(query)
	if err != nil {
		return nil, err
	}
	if err := coll.Sync(ctx); err != nil {
		return nil, err
	}
	if st := coll.Snapshot(); st.LoadingError != "" {
		return nil, fmt.Errorf("failed to list handlers: %s", st.LoadingError)
	}
	return coll, nil
}

func listJSON(ctx context.Context, c *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	coll, err := loadCollection(ctx, c, executor)
	if err != nil {
		return err
	}
	out := make([]enginehandler.State, 0, coll.Len())
	for _, h := range coll.Handlers() {
		out = append(out, h.Snapshot())
	}
	return executor.Output().WriteJSON(map[string]any{"handlers": out})
}

func listText(ctx context.Context, c *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	coll, err := loadCollection(ctx, c, executor)
	if err != nil {
		return err
	}
	out := executor.Output()
	rows := make([][]string, 0, coll.Len())
	for _, h := range coll.Handlers() {
		st := h.Snapshot()
		rows = append(rows, []string{
			st.HandlerID,
			st.WorkflowName,
			out.Status(st.Status),
			cmd.FormatTime(st.StartedAt),
			cmd.FormatTime(st.UpdatedAt),
		})
	}
	return out.WriteTable([]string{"HANDLER", "WORKFLOW", "STATUS", "STARTED", "UPDATED"}, rows)
}

// load returns the synced shared store for id.
func load(ctx context.Context, executor *cmd.CommandExecutor, id string) (*enginehandler.Store, error) {
	h, err := executor.Stores().Handler(id)
	if err != nil {
		return nil, err
	}
	if err := h.Sync(ctx); err != nil {
		return nil, err
	}
	if st := h.Snapshot(); st.LoadingError != "" {
		return nil, fmt.Errorf("failed to load handler %s: %s", id, st.LoadingError)
	}
	return h, nil
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <handler-id>",
		Short: "Show the state of a handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: get}, args)
		},
	}
}

func get(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	h, err := load(ctx, executor, args[0])
	if err != nil {
		return err
	}
	return cmd.PrintHandler(executor, h.Snapshot())
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <handler-id>",
		Short: "Stream the events of a handler until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: watch}, args)
		},
	}
}

func watch(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	h, err := load(ctx, executor, args[0])
	if err != nil {
		return err
	}
	if h.Snapshot().IsTerminal() {
		return cmd.PrintHandler(executor, h.Snapshot())
	}
	return cmd.Follow(ctx, executor, h)
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <handler-id>",
		Short: "Cancel a running handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: cancel}, args)
		},
	}
}

func cancel(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	h, err := executor.Stores().Handler(args[0])
	if err != nil {
		return err
	}
	if err := h.Cancel(ctx); err != nil {
		return err
	}
	return cmd.PrintHandler(executor, h.Snapshot())
}

func sendCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "send <handler-id>",
		Short: "Send an event to a running handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: send}, args)
		},
	}
	c.Flags().String("type", "", "Event type")
	c.Flags().String("data", "", "Event payload as JSON, @file or - for stdin")
	c.Flags().String("step", "", "Target step")
	_ = c.MarkFlagRequired("type")
	return c
}

func send(ctx context.Context, c *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	eventType, err := c.Flags().GetString("type")
	if err != nil {
		return err
	}
	raw, err := c.Flags().GetString("data")
	if err != nil {
		return err
	}
	step, err := c.Flags().GetString("step")
	if err != nil {
		return err
	}
	data, err := helpers.ReadJSONObject(raw, c.InOrStdin())
	if err != nil {
		return err
	}
	h, err := executor.Stores().Handler(args[0])
	if err != nil {
		return err
	}
	resp, err := h.SendEvent(ctx, core.NewEvent(eventType, data), step)
	if err != nil {
		return err
	}
	if executor.Mode() == helpers.ModeJSON {
		return executor.Output().WriteJSON(resp)
	}
	executor.Output().Printf("Event %s sent to %s (%s)\n", eventType, args[0], resp.Status)
	return nil
}
