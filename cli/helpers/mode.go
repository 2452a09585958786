package helpers

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Mode selects how command results are rendered.
type Mode string

const (
	ModeJSON Mode = "json"
	ModeText Mode = "text"
)

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	if os.Getenv("CI") != "" {
		return true
	}
	for _, v := range []string{
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"BUILDKITE",
		"JENKINS_URL",
		"TF_BUILD", // Azure DevOps
		"CONTINUOUS_INTEGRATION",
	} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectMode returns JSON when --json is set or stdout is not an
// interactive terminal.
func DetectMode(cmd *cobra.Command) Mode {
	if jsonFlag, err := cmd.Flags().GetBool("json"); err == nil && jsonFlag {
		return ModeJSON
	}
	if isRunningInCI() || !isTerminal(os.Stdout) {
		return ModeJSON
	}
	return ModeText
}

// ShouldUseColor determines if colored output should be used
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" || isRunningInCI() {
		return false
	}
	if !isTerminal(os.Stdout) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}
