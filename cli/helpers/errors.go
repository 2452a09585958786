package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CliError) Unwrap() error {
	return e.cause
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// CategorizeError converts well-known failures into CLI errors. Unknown
// errors are returned unchanged.
func CategorizeError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var categorized *CliError
	var apiErr *client.APIError
	var invariant *core.InvariantError
	var execErr *core.ExecutionError
	switch {
	case errors.Is(err, context.Canceled):
		categorized = NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, context.DeadlineExceeded) || client.IsTimeoutError(err):
		categorized = NewCliError("OPERATION_TIMEOUT", "Operation timed out", err.Error())
	case errors.Is(err, core.ErrNotInitialized):
		categorized = NewCliError("MISSING_HANDLER_ID", "Handler id is required", err.Error())
	case errors.As(err, &invariant):
		categorized = NewCliError("INVARIANT_VIOLATION", "Handler did not settle after its stop event", err.Error())
	case errors.As(err, &execErr):
		categorized = NewCliError("EXECUTION_FAILED", "Workflow execution failed", execErr.Message)
	case client.IsNotFound(err):
		categorized = NewCliError("NOT_FOUND", "Resource not found", err.Error())
	case errors.As(err, &apiErr):
		categorized = NewCliError("API_ERROR", fmt.Sprintf("Server returned %d", apiErr.Status), apiErr.Message)
	case client.IsNetworkError(err):
		categorized = NewCliError("NETWORK_ERROR", "Network connection failed", err.Error())
	default:
		return err
	}
	categorized.cause = err
	return categorized
}

// FormatError formats errors based on output mode
func FormatError(err error, mode Mode) string {
	if err == nil {
		return ""
	}
	message, details := err.Error(), ""
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		message, details = cliErr.Message, cliErr.Details
	}
	if mode == ModeJSON {
		out, mErr := json.MarshalIndent(map[string]any{"error": message, "details": details}, "", "  ")
		if mErr != nil {
			return `{"error": "JSON marshaling failed", "details": ""}`
		}
		return string(out)
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	result := "✗ " + style.Render(message)
	if details != "" {
		detailStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
		result += "\n" + detailStyle.Render("Details: "+details)
	}
	return result
}

// OutputError writes err to w in the appropriate format
func OutputError(w io.Writer, err error, mode Mode) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, FormatError(err, mode))
}

// ReportedError marks an error that was already written for the user.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string {
	return e.Err.Error()
}

func (e *ReportedError) Unwrap() error {
	return e.Err
}
