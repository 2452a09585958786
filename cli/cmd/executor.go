package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/engine/app"
	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/pkg/config"
	"github.com/compozy/workflowkit/pkg/logger"
)

// CommandExecutor carries what every command needs: the detected output
// mode, a writer for it and the shared stores backed by the configured
// server.
type CommandExecutor struct {
	mode   helpers.Mode
	out    *helpers.OutputWriter
	cfg    *config.Config
	stores *app.Stores
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

// ModeHandlers contains handlers for different output modes.
type ModeHandlers struct {
	JSON HandlerFunc
	Text HandlerFunc
}

// APIFactory builds the API used by commands. Tests replace it.
var APIFactory = func(cfg *config.Config) (client.API, error) {
	c, err := client.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCommandExecutor creates a new command executor with all necessary setup.
func NewCommandExecutor(cmd *cobra.Command) (*CommandExecutor, error) {
	ctx := cmd.Context()
	mode := helpers.DetectMode(cmd)
	logger.FromContext(ctx).Debug("detected output mode", "mode", mode)
	cfg := config.FromContext(ctx)
	api, err := APIFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &CommandExecutor{
		mode:   mode,
		out:    helpers.NewOutputWriter(cmd.OutOrStdout(), mode, mode == helpers.ModeText && helpers.ShouldUseColor()),
		cfg:    cfg,
		stores: app.New(api, nil),
	}, nil
}

// Execute runs the appropriate handler based on the detected mode.
func (e *CommandExecutor) Execute(ctx context.Context, cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer e.stores.Reset()
	switch e.mode {
	case helpers.ModeJSON:
		if handlers.JSON == nil {
			return fmt.Errorf("JSON mode handler not implemented")
		}
		return handlers.JSON(ctx, cmd, e, args)
	case helpers.ModeText:
		if handlers.Text == nil {
			return handlers.JSON(ctx, cmd, e, args)
		}
		return handlers.Text(ctx, cmd, e, args)
	default:
		return fmt.Errorf("unsupported mode: %s", e.mode)
	}
}

func (e *CommandExecutor) Mode() helpers.Mode {
	return e.mode
}

func (e *CommandExecutor) Output() *helpers.OutputWriter {
	return e.out
}

func (e *CommandExecutor) Config() *config.Config {
	return e.cfg
}

func (e *CommandExecutor) Stores() *app.Stores {
	return e.stores
}

// ExecuteCommand is a convenience function that combines executor creation and execution.
func ExecuteCommand(cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	executor, err := NewCommandExecutor(cmd)
	if err != nil {
		return HandleCommonErrors(cmd, err, helpers.DetectMode(cmd))
	}
	return HandleCommonErrors(cmd, executor.Execute(cmd.Context(), cmd, handlers, args), executor.Mode())
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(cmd *cobra.Command, err error, mode helpers.Mode) error {
	if err == nil {
		return nil
	}
	err = helpers.CategorizeError(err)
	helpers.OutputError(cmd.ErrOrStderr(), err, mode)
	return &helpers.ReportedError{Err: err}
}
