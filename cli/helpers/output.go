package helpers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/compozy/workflowkit/engine/core"
)

// OutputWriter renders command results as JSON or styled text.
type OutputWriter struct {
	writer io.Writer
	mode   Mode
	color  bool
}

func NewOutputWriter(writer io.Writer, mode Mode, color bool) *OutputWriter {
	return &OutputWriter{writer: writer, mode: mode, color: color}
}

func (ow *OutputWriter) Mode() Mode {
	return ow.mode
}

// WriteJSON writes data as indented JSON
func (ow *OutputWriter) WriteJSON(data any) error {
	encoder := json.NewEncoder(ow.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// WriteJSONLine writes data as one compact JSON line, for streamed records.
func (ow *OutputWriter) WriteJSONLine(data any) error {
	return json.NewEncoder(ow.writer).Encode(data)
}

// WriteTable renders rows under headers.
func (ow *OutputWriter) WriteTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(ow.writer, ow.muted("No results"))
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if ow.color {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	}
	_, err := fmt.Fprintln(ow.writer, t.Render())
	return err
}

// Printf writes formatted text.
func (ow *OutputWriter) Printf(format string, args ...any) {
	fmt.Fprintf(ow.writer, format, args...)
}

// Field writes one "label: value" line.
func (ow *OutputWriter) Field(label, value string) {
	if value == "" {
		value = "-"
	}
	if ow.color {
		label = lipgloss.NewStyle().Bold(true).Render(label)
	}
	fmt.Fprintf(ow.writer, "%s: %s\n", label, value)
}

// Status renders a run status, colored by outcome.
func (ow *OutputWriter) Status(status core.RunStatus) string {
	if !ow.color {
		return status.String()
	}
	var color lipgloss.Color
	switch status {
	case core.StatusCompleted:
		color = lipgloss.Color("#4CAF50")
	case core.StatusFailed:
		color = lipgloss.Color("#FF6B6B")
	case core.StatusCancelled:
		color = lipgloss.Color("#FFB74D")
	case core.StatusRunning:
		color = lipgloss.Color("#64B5F6")
	default:
		color = lipgloss.Color("#888888")
	}
	return lipgloss.NewStyle().Foreground(color).Render(status.String())
}

func (ow *OutputWriter) muted(s string) string {
	if !ow.color {
		return s
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true).Render(s)
}
