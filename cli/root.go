package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/workflowkit/cli/cmd/handler"
	"github.com/compozy/workflowkit/cli/cmd/workflow"
	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/pkg/config"
	"github.com/compozy/workflowkit/pkg/logger"
	"github.com/compozy/workflowkit/pkg/version"
)

// Execute runs the root command and reports errors no command reported.
func Execute(ctx context.Context) error {
	root := RootCmd()
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return nil
	}
	var reported *helpers.ReportedError
	if !errors.As(err, &reported) {
		helpers.OutputError(cmd.ErrOrStderr(), helpers.CategorizeError(err), helpers.DetectMode(cmd))
	}
	return err
}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "workflowkit",
		Short: "Inspect, run and follow workflow executions",
		Long: `workflowkit talks to a workflow server: it lists workflows, starts
executions and follows their event streams until they settle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupGlobalConfig(cmd)
		},
	}
	helpers.AddGlobalFlags(root)
	root.AddCommand(
		workflow.Cmd(),
		workflow.RunCmd(),
		handler.Cmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if helpers.DetectMode(cmd) == helpers.ModeJSON {
				return helpers.NewOutputWriter(cmd.OutOrStdout(), helpers.ModeJSON, false).WriteJSON(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflowkit version %s\ncommit: %s\nbuilt: %s\n",
				info.Version, info.CommitHash, info.BuildDate)
			return nil
		},
	}
}

func setupGlobalConfig(cmd *cobra.Command) error {
	if err := helpers.LoadEnvironmentFile(cmd); err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cliFlags, err := helpers.ExtractCLIFlags(cmd)
	if err != nil {
		return fmt.Errorf("failed to extract CLI flags: %w", err)
	}
	var sources []config.Source
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config file: %w", err)
	}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	if len(cliFlags) > 0 {
		sources = append(sources, config.NewCLIProvider(cliFlags))
	}
	cfg, err := config.Load(ctx, sources...)
	if err != nil {
		return err
	}
	logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	ctx = logger.ContextWithLogger(ctx, logger.GetDefault())
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}
