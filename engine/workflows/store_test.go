package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/compozy/workflowkit/engine/client/clienttest"
	"github.com/compozy/workflowkit/engine/workflow"
	"github.com/compozy/workflowkit/pkg/logger"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(logger.ContextWithLogger(context.Background(), logger.NewForTests()), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStore_Sync(t *testing.T) {
	t.Run("Should list workflows from the server", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		srv.AddWorkflow("wf-b", map[string]any{})
		s := NewStore(srv.NewClient(t), nil)
		require.NoError(t, s.Sync(testContext(t)))
		assert.ElementsMatch(t, []string{"wf-a", "wf-b"}, s.Names())
		w, ok := s.Workflow("wf-a")
		require.True(t, ok)
		assert.Equal(t, "wf-a", w.Name())
		assert.Len(t, s.Workflows(), 2)
	})

	t.Run("Should remove stale names and keep existing instances", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{})
		srv.AddWorkflow("wf-b", map[string]any{})
		s := NewStore(srv.NewClient(t), nil)
		ctx := testContext(t)
		require.NoError(t, s.Sync(ctx))
		before, _ := s.Workflow("wf-a")

		srv.RemoveWorkflow("wf-b")
		srv.AddWorkflow("wf-c", map[string]any{})
		require.NoError(t, s.Sync(ctx))
		after, ok := s.Workflow("wf-a")
		require.True(t, ok)
		assert.Same(t, before, after)
		_, ok = s.Workflow("wf-b")
		assert.False(t, ok)
		assert.ElementsMatch(t, []string{"wf-a", "wf-c"}, s.Names())
	})

	t.Run("Should keep the catalog when the request fails", func(t *testing.T) {
		api := clienttest.NewMockAPI()
		api.On("ListWorkflows", mock.Anything).Return([]string{"wf-a"}, nil).Once()
		api.On("ListWorkflows", mock.Anything).Return(nil, errors.New("network down")).Once()
		s := NewStore(api, nil)
		ctx := testContext(t)
		require.NoError(t, s.Sync(ctx))
		require.NoError(t, s.Sync(ctx))
		st := s.Snapshot()
		assert.False(t, st.Loading)
		assert.Equal(t, "network down", st.LoadingError)
		assert.Equal(t, []string{"wf-a"}, st.Names)
	})

	t.Run("Should use the resolver for new names", func(t *testing.T) {
		api := clienttest.NewMockAPI()
		api.On("ListWorkflows", mock.Anything).Return([]string{"wf-a"}, nil)
		shared := workflow.NewStore(api, nil, "wf-a", nil)
		calls := 0
		s := NewStore(api, func(string) (*workflow.Store, error) {
			calls++
			return shared, nil
		})
		ctx := testContext(t)
		require.NoError(t, s.Sync(ctx))
		require.NoError(t, s.Sync(ctx))
		w, _ := s.Workflow("wf-a")
		assert.Same(t, shared, w)
		assert.Equal(t, 1, calls)
	})
}

func TestStore_SyncGraphs(t *testing.T) {
	t.Run("Should fetch every graph", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.AddWorkflow("wf-a", map[string]any{"id": "a"})
		srv.AddWorkflow("wf-b", map[string]any{"id": "b"})
		s := NewStore(srv.NewClient(t), nil)
		ctx := testContext(t)
		require.NoError(t, s.Sync(ctx))
		require.NoError(t, s.SyncGraphs(ctx, 1))
		for _, w := range s.Workflows() {
			st := w.Snapshot()
			assert.Empty(t, st.LoadingError)
			assert.NotEmpty(t, st.Graph["id"])
		}
	})
}
