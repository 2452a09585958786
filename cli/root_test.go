package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/workflowkit/cli/helpers"
	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/client/clienttest"
	"github.com/compozy/workflowkit/engine/core"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, srv *clienttest.Server, args ...string) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	root := RootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args,
		"--json",
		"--env-file", "",
		"--log-level", "disabled",
		"--base-url", srv.URL,
		"--retry-count", "0",
		"--connect-retries", "0",
	))
	err := root.ExecuteContext(ctx)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out), raw)
	return out
}

func TestWorkflowsCommands(t *testing.T) {
	t.Run("Should list workflows", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		srv.AddWorkflow("wf-b", map[string]any{})
		res := runCLI(t, srv, "workflows", "list")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, []any{"wf-a", "wf-b"}, decode(t, res.stdout)["workflows"])
	})

	t.Run("Should print a workflow graph", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{"nodes": []any{"start"}})
		res := runCLI(t, srv, "workflows", "graph", "wf-a")
		require.NoError(t, res.err, res.stderr)
		out := decode(t, res.stdout)
		assert.Equal(t, "wf-a", out["name"])
		assert.Equal(t, map[string]any{"nodes": []any{"start"}}, out["graph"])
	})

	t.Run("Should report a missing graph", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		res := runCLI(t, srv, "workflows", "graph", "missing")
		require.Error(t, res.err)
		var cliErr *helpers.CliError
		require.ErrorAs(t, res.err, &cliErr)
		assert.Equal(t, "GRAPH_UNAVAILABLE", cliErr.Code)
		assert.Contains(t, res.stderr, "Failed to load graph")
	})

	t.Run("Should start a run with a client assigned id", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		res := runCLI(t, srv, "workflows", "run", "wf-a", "--handler-id", "h-9", "--input", `{"topic":"go"}`)
		require.NoError(t, res.err, res.stderr)
		out := decode(t, res.stdout)
		assert.Equal(t, "h-9", out["handler_id"])
		assert.Equal(t, "running", out["status"])
		_, ok := srv.Handler("h-9")
		assert.True(t, ok)
	})

	t.Run("Should accept run at the root", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		res := runCLI(t, srv, "run", "wf-a", "--handler-id", "h-10")
		require.NoError(t, res.err, res.stderr)
		out := decode(t, res.stdout)
		assert.Equal(t, "h-10", out["handler_id"])
	})

	t.Run("Should wait for completion", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		res := runCLI(t, srv, "workflows", "run", "wf-a", "--wait", "--input", `{"answer":42}`)
		require.NoError(t, res.err, res.stderr)
		out := decode(t, res.stdout)
		assert.Equal(t, "completed", out["status"])
	})

	t.Run("Should exit with an error when the run failed", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		srv.OnRunToCompletion(func(name string, _ client.RunRequest) client.Handler {
			return client.Handler{HandlerID: "h-f", WorkflowName: name, Status: "failed", Error: "boom"}
		})
		res := runCLI(t, srv, "workflows", "run", "wf-a", "--wait")
		var execErr *core.ExecutionError
		require.ErrorAs(t, res.err, &execErr)
		assert.Equal(t, "boom", execErr.Message)
	})

	t.Run("Should reject invalid input", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		res := runCLI(t, srv, "workflows", "run", "wf-a", "--input", "[1]")
		var cliErr *helpers.CliError
		require.ErrorAs(t, res.err, &cliErr)
		assert.Equal(t, "INVALID_INPUT", cliErr.Code)
	})
}

func TestHandlersCommands(t *testing.T) {
	seed := func(t *testing.T) *clienttest.Server {
		t.Helper()
		srv := clienttest.NewServer(t)
		srv.PutHandler(client.Handler{HandlerID: "h-1", WorkflowName: "wf-a", Status: "running"})
		srv.PutHandler(client.Handler{HandlerID: "h-2", WorkflowName: "wf-b", Status: "completed"})
		return srv
	}

	t.Run("Should list handlers filtered by status", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "list", "--status", "running")
		require.NoError(t, res.err, res.stderr)
		list, ok := decode(t, res.stdout)["handlers"].([]any)
		require.True(t, ok)
		require.Len(t, list, 1)
		assert.Equal(t, "h-1", list[0].(map[string]any)["handler_id"])
	})

	t.Run("Should reject unknown statuses", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "list", "--status", "bogus")
		var cliErr *helpers.CliError
		require.ErrorAs(t, res.err, &cliErr)
		assert.Equal(t, "INVALID_STATUS", cliErr.Code)
	})

	t.Run("Should get one handler", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "get", "h-2")
		require.NoError(t, res.err, res.stderr)
		out := decode(t, res.stdout)
		assert.Equal(t, "wf-b", out["workflow_name"])
		assert.Equal(t, "completed", out["status"])
	})

	t.Run("Should fail for an unknown handler", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "get", "nope")
		require.Error(t, res.err)
		assert.Contains(t, res.stderr, "error")
	})

	t.Run("Should send an event", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "send", "h-1", "--type", "Approve", "--data", `{"ok":true}`, "--step", "review")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "sent", decode(t, res.stdout)["status"])
		sent := srv.SentEvents("h-1")
		require.Len(t, sent, 1)
		assert.Equal(t, "review", sent[0].Step)
		assert.Contains(t, sent[0].Event, "Approve")
	})

	t.Run("Should cancel a handler", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "cancel", "h-1")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "cancelled", decode(t, res.stdout)["status"])
		assert.Equal(t, 1, srv.CancelCount("h-1"))
	})

	t.Run("Should print a settled handler without streaming", func(t *testing.T) {
		srv := seed(t)
		res := runCLI(t, srv, "handlers", "watch", "h-2")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "completed", decode(t, res.stdout)["status"])
		assert.Equal(t, 0, srv.StreamConnections("h-2"))
	})

	t.Run("Should follow a running handler until it completes", func(t *testing.T) {
		srv := seed(t)
		go func() {
			deadline := time.Now().Add(5 * time.Second)
			for srv.StreamConnections("h-1") == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			srv.Emit("h-1", core.NewEvent("Progress", map[string]any{"step": 1.0}))
			srv.Complete("h-1", map[string]any{"done": true})
		}()
		res := runCLI(t, srv, "handlers", "watch", "h-1")
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, `"Progress"`)
		assert.Contains(t, res.stdout, `"status": "completed"`)
	})
}

func TestVersionCommand(t *testing.T) {
	t.Run("Should print build information", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		res := runCLI(t, srv, "version")
		require.NoError(t, res.err)
		assert.Contains(t, decode(t, res.stdout), "version")
	})
}

func TestGlobalConfig(t *testing.T) {
	t.Run("Should reject an invalid base URL", func(t *testing.T) {
		root := RootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"workflows", "list", "--env-file", "", "--base-url", "not a url"})
		err := root.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
	})
}
