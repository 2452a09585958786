package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/handler"
	"github.com/compozy/workflowkit/pkg/logger"
)

// Follow streams the events of h until it settles and prints its final
// state. An interrupted follow detaches without canceling the execution.
func Follow(ctx context.Context, e *CommandExecutor, h *handler.Store) error {
	log := logger.FromContext(ctx)
	out := e.Output()
	id := h.HandlerID()
	sub := handler.Subscriber{
		OnStart: func() {
			if e.Mode() == helpers.ModeText {
				out.Printf("Following handler %s\n", id)
			}
		},
		OnData: func(evt *core.WorkflowEvent) {
			if e.Mode() == helpers.ModeJSON {
				if err := out.WriteJSONLine(evt); err != nil {
					log.Warn("Failed to write event", "error", err)
				}
				return
			}
			out.Printf("%s  %s %s\n", time.Now().Format(time.TimeOnly), evt.Type, summarize(evt))
		},
	}
	op, err := h.SubscribeToEvents(ctx, sub, e.Config().Stream.IncludeInternal)
	if err != nil {
		return err
	}
	if _, err := op.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			op.Disconnect()
			return nil
		}
		return err
	}
	st := h.Snapshot()
	if err := PrintHandler(e, st); err != nil {
		return err
	}
	if st.Status == core.StatusFailed {
		return core.NewExecutionError(st.HandlerID, st.Error)
	}
	return nil
}

func summarize(evt *core.WorkflowEvent) string {
	if len(evt.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(evt.Data))
	for k, v := range evt.Data {
		keys = append(keys, fmt.Sprintf("%s=%v", k, v))
	}
	slices.Sort(keys)
	line := strings.Join(keys, " ")
	const maxLen = 120
	if runes := []rune(line); len(runes) > maxLen {
		line = string(runes[:maxLen]) + "…"
	}
	return line
}

// PrintHandler renders one handler state.
func PrintHandler(e *CommandExecutor, st handler.State) error {
	out := e.Output()
	if e.Mode() == helpers.ModeJSON {
		return out.WriteJSON(st)
	}
	out.Field("Handler", st.HandlerID)
	out.Field("Workflow", st.WorkflowName)
	out.Field("Status", out.Status(st.Status))
	out.Field("Started", FormatTime(st.StartedAt))
	out.Field("Updated", FormatTime(st.UpdatedAt))
	out.Field("Completed", FormatTime(st.CompletedAt))
	if st.Error != "" {
		out.Field("Error", st.Error)
	}
	if st.Result != nil {
		out.Field("Result", summarize(st.Result))
	}
	return nil
}

// FormatTime renders an optional timestamp for tables.
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
