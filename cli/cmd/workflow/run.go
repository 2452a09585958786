package workflow

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/compozy/workflowkit/cli/cmd"
	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/handler"
)

// RunCmd returns the run command. It is mounted under the workflows group and
// at the root as a shortcut.
func RunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run <name>",
		Short: "Start a workflow execution",
		Long: `Start a workflow execution.

By default the command returns once the server accepted the run. Use --wait to
block until the server finishes it, or --follow to stream its events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, cmd.ModeHandlers{JSON: run}, args)
		},
	}
	c.Flags().String("input", "", "Start event as JSON, @file or - for stdin")
	c.Flags().String("handler-id", "", "Client assigned handler id")
	c.Flags().Bool("wait", false, "Block until the execution completes")
	c.Flags().Bool("follow", false, "Stream events until the execution completes")
	c.MarkFlagsMutuallyExclusive("wait", "follow")
	return c
}

func run(ctx context.Context, c *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	raw, err := c.Flags().GetString("input")
	if err != nil {
		return err
	}
	input, err := helpers.ReadJSONObject(raw, c.InOrStdin())
	if err != nil {
		return err
	}
	wait, err := c.Flags().GetBool("wait")
	if err != nil {
		return err
	}
	follow, err := c.Flags().GetBool("follow")
	if err != nil {
		return err
	}
	handlerID, err := c.Flags().GetString("handler-id")
	if err != nil {
		return err
	}
	wf, err := executor.Stores().Workflow(args[0])
	if err != nil {
		return err
	}
	var h *handler.Store
	if wait {
		h, err = wf.RunToCompletion(ctx, input)
	} else {
		h, err = wf.CreateHandler(ctx, input, handlerID)
	}
	if err != nil {
		return err
	}
	if h, err = executor.Stores().Register(h); err != nil {
		return err
	}
	if follow {
		return cmd.Follow(ctx, executor, h)
	}
	st := h.Snapshot()
	if err := cmd.PrintHandler(executor, st); err != nil {
		return err
	}
	if st.Status == core.StatusFailed {
		return core.NewExecutionError(st.HandlerID, st.Error)
	}
	return nil
}
