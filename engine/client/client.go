package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/pkg/config"
	"github.com/compozy/workflowkit/pkg/version"
)

// API is the transport surface the stores depend on.
type API interface {
	ListWorkflows(ctx context.Context) ([]string, error)
	GetWorkflowGraph(ctx context.Context, name string) (map[string]any, error)
	RunWorkflow(ctx context.Context, name string, req RunRequest) (*Handler, error)
	RunWorkflowNoWait(ctx context.Context, name string, req RunRequest) (*Handler, error)
	ListHandlers(ctx context.Context, filter HandlerFilter) ([]Handler, error)
	GetHandler(ctx context.Context, handlerID string) (*Handler, error)
	SendEvent(ctx context.Context, handlerID string, req SendEventRequest) (*SendEventResponse, error)
	CancelHandler(ctx context.Context, handlerID string) error
	StreamEvents(ctx context.Context, handlerID string, includeInternal bool, h StreamHandler) error
}

// Client talks to a workflow server over HTTP.
type Client struct {
	opts   Options
	http   *resty.Client
	stream *resty.Client
}

var _ API = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Client{
		opts:   opts,
		http:   buildHTTPClient(&opts),
		stream: buildStreamClient(&opts),
	}, nil
}

// NewFromConfig builds a client from the loaded process configuration.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return New(optionsFromConfig(cfg))
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

func buildHTTPClient(opts *Options) *resty.Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeaders(opts.Headers).
		SetDebug(opts.Debug)
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	client.AddRetryCondition(retryCondition)
	return client
}

// buildStreamClient returns a client without an overall timeout so that
// long-lived event streams are bounded only by their context.
func buildStreamClient(opts *Options) *resty.Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetHeader("User-Agent", version.UserAgent()).
		SetHeaders(opts.Headers).
		SetRetryCount(0)
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return client
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return IsRetryable(0, err)
	}
	if r == nil {
		return false
	}
	return IsRetryable(r.StatusCode(), nil)
}

func (c *Client) ListWorkflows(ctx context.Context) ([]string, error) {
	var result workflowsResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/workflows")
	if err := handleResponse(resp, err, "list workflows"); err != nil {
		return nil, err
	}
	return result.Workflows, nil
}

func (c *Client) GetWorkflowGraph(ctx context.Context, name string) (map[string]any, error) {
	if name == "" {
		return nil, fmt.Errorf("workflow name is required")
	}
	var result graphResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetResult(&result).
		Get("/workflows/{name}/representation")
	if err := handleResponse(resp, err, "get workflow graph"); err != nil {
		return nil, err
	}
	return result.Graph, nil
}

func (c *Client) RunWorkflow(ctx context.Context, name string, req RunRequest) (*Handler, error) {
	return c.run(ctx, "/workflows/{name}/run", name, RunRequest{StartEvent: req.StartEvent, Context: req.Context})
}

func (c *Client) RunWorkflowNoWait(ctx context.Context, name string, req RunRequest) (*Handler, error) {
	return c.run(ctx, "/workflows/{name}/run-nowait", name, RunRequest{
		StartEvent: req.StartEvent,
		HandlerID:  req.HandlerID,
	})
}

func (c *Client) run(ctx context.Context, path, name string, body RunRequest) (*Handler, error) {
	if name == "" {
		return nil, fmt.Errorf("workflow name is required")
	}
	var result Handler
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetBody(body).
		SetResult(&result).
		Post(path)
	if err := handleResponse(resp, err, "run workflow "+name); err != nil {
		return nil, err
	}
	if result.HandlerID == "" {
		return nil, fmt.Errorf("workflow %s run returned an empty handler: %s", name, strings.TrimSpace(resp.String()))
	}
	return &result, nil
}

func (c *Client) ListHandlers(ctx context.Context, filter HandlerFilter) ([]Handler, error) {
	query := url.Values{}
	for _, name := range filter.WorkflowNames {
		query.Add("workflow_name", name)
	}
	for _, status := range filter.Statuses {
		query.Add("status", status)
	}
	var result handlersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetResult(&result).
		Get("/handlers")
	if err := handleResponse(resp, err, "list handlers"); err != nil {
		return nil, err
	}
	return result.Handlers, nil
}

func (c *Client) GetHandler(ctx context.Context, handlerID string) (*Handler, error) {
	if handlerID == "" {
		return nil, core.ErrNotInitialized
	}
	var result Handler
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("handler_id", handlerID).
		SetResult(&result).
		Get("/handlers/{handler_id}")
	if err := handleResponse(resp, err, "get handler"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SendEvent(ctx context.Context, handlerID string, req SendEventRequest) (*SendEventResponse, error) {
	if handlerID == "" {
		return nil, core.ErrNotInitialized
	}
	var result SendEventResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("handler_id", handlerID).
		SetBody(req).
		SetResult(&result).
		Post("/events/{handler_id}")
	if err := handleResponse(resp, err, "send event"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CancelHandler(ctx context.Context, handlerID string) error {
	if handlerID == "" {
		return core.ErrNotInitialized
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("handler_id", handlerID).
		Post("/handlers/{handler_id}/cancel")
	return handleResponse(resp, err, "cancel handler")
}

func handleResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, parseAPIError(resp.StatusCode(), resp.Body()))
}

func parseAPIError(status int, body []byte) *APIError {
	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		return newAPIError(status, &parsed, string(body))
	}
	return newAPIError(status, nil, string(body))
}
