package clienttest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/compozy/workflowkit/engine/client"
)

// MockAPI is a testify mock of client.API.
type MockAPI struct {
	mock.Mock
}

var _ client.API = (*MockAPI)(nil)

func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

func (m *MockAPI) ListWorkflows(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) GetWorkflowGraph(ctx context.Context, name string) (map[string]any, error) {
	args := m.Called(ctx, name)
	if v := args.Get(0); v != nil {
		return v.(map[string]any), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) RunWorkflow(ctx context.Context, name string, req client.RunRequest) (*client.Handler, error) {
	args := m.Called(ctx, name, req)
	if v := args.Get(0); v != nil {
		return v.(*client.Handler), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) RunWorkflowNoWait(
	ctx context.Context,
	name string,
	req client.RunRequest,
) (*client.Handler, error) {
	args := m.Called(ctx, name, req)
	if v := args.Get(0); v != nil {
		return v.(*client.Handler), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) ListHandlers(ctx context.Context, filter client.HandlerFilter) ([]client.Handler, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]client.Handler), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) GetHandler(ctx context.Context, handlerID string) (*client.Handler, error) {
	args := m.Called(ctx, handlerID)
	if v := args.Get(0); v != nil {
		return v.(*client.Handler), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) SendEvent(
	ctx context.Context,
	handlerID string,
	req client.SendEventRequest,
) (*client.SendEventResponse, error) {
	args := m.Called(ctx, handlerID, req)
	if v := args.Get(0); v != nil {
		return v.(*client.SendEventResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) CancelHandler(ctx context.Context, handlerID string) error {
	args := m.Called(ctx, handlerID)
	return args.Error(0)
}

func (m *MockAPI) StreamEvents(
	ctx context.Context,
	handlerID string,
	includeInternal bool,
	h client.StreamHandler,
) error {
	args := m.Called(ctx, handlerID, includeInternal, h)
	return args.Error(0)
}
