package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/compozy/workflowkit/pkg/config"
)

// AddGlobalFlags registers the flags shared by every command.
func AddGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to an environment file loaded before configuration")
	flags.String("base-url", "", "Workflow server base URL")
	flags.String("api-key", "", "API key sent as a bearer token")
	flags.Duration("timeout", 0, "Request timeout")
	flags.Int("retry-count", 0, "Retries for failed requests")
	flags.Int("connect-retries", 0, "Retries when opening an event stream")
	flags.Bool("include-internal", false, "Include internal events in event streams")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.Bool("json", false, "Write results as JSON")
}

// ExtractCLIFlags returns the configuration flags the user set explicitly.
func ExtractCLIFlags(cmd *cobra.Command) (map[string]any, error) {
	out := make(map[string]any)
	var extractErr error
	known := make(map[string]bool)
	for _, name := range config.CLIFlagNames() {
		known[name] = true
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if extractErr != nil || !known[f.Name] {
			return
		}
		value, err := flagValue(cmd.Flags(), f)
		if err != nil {
			extractErr = fmt.Errorf("failed to read flag %s: %w", f.Name, err)
			return
		}
		out[f.Name] = value
	})
	return out, extractErr
}

func flagValue(flags *pflag.FlagSet, f *pflag.Flag) (any, error) {
	switch f.Value.Type() {
	case "bool":
		return flags.GetBool(f.Name)
	case "int":
		return flags.GetInt(f.Name)
	case "duration":
		return flags.GetDuration(f.Name)
	default:
		return f.Value.String(), nil
	}
}

// LoadEnvironmentFile loads --env-file when it exists. A missing default
// file is not an error.
func LoadEnvironmentFile(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil || envFile == "" {
		return nil
	}
	absPath, err := filepath.Abs(envFile)
	if err != nil {
		return fmt.Errorf("failed to resolve env file path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return nil
}
