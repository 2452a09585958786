package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/compozy/workflowkit/engine/core"
)

// ErrStopStream may be returned by StreamHandler.OnMessage to close the
// stream without reporting an error.
var ErrStopStream = errors.New("stop stream")

// StreamHandler receives the lifecycle of one event stream connection.
type StreamHandler struct {
	OnOpen    func()
	OnMessage func(data []byte) error
	// OnTransportError receives read failures after the stream opened. They
	// do not say anything about the execution outcome.
	OnTransportError func(err error)
}

// StreamEvents opens the handler's SSE stream and blocks until it ends, ctx
// is canceled or OnMessage returns an error. A clean end of stream, a
// canceled context and mid-stream read failures all return nil.
func (c *Client) StreamEvents(ctx context.Context, handlerID string, includeInternal bool, h StreamHandler) error {
	if handlerID == "" {
		return core.ErrNotInitialized
	}
	body, err := c.connectStream(ctx, handlerID, includeInternal)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer body.Close()
	if h.OnOpen != nil {
		h.OnOpen()
	}
	decoder := NewDecoder(body, c.opts.BufferSize)
	for {
		frame, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if h.OnTransportError != nil {
				h.OnTransportError(err)
			}
			return nil
		}
		if frame.Event != "" && frame.Event != "message" {
			continue
		}
		if h.OnMessage == nil {
			continue
		}
		if err := h.OnMessage(frame.Data); err != nil {
			if errors.Is(err, ErrStopStream) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) connectStream(ctx context.Context, handlerID string, includeInternal bool) (io.ReadCloser, error) {
	backoff := retry.WithMaxRetries(uint64(c.opts.ConnectRetries), retry.NewExponential(c.opts.ConnectBackoff))
	var body io.ReadCloser
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req := c.stream.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetPathParam("handler_id", handlerID).
			SetQueryParam("sse", "true")
		if includeInternal {
			req.SetQueryParam("include_internal", "true")
		}
		resp, err := req.Get("/events/{handler_id}")
		if err != nil {
			if IsRetryable(0, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if resp.StatusCode() >= 300 {
			apiErr := readStreamError(resp)
			if IsRetryable(resp.StatusCode(), nil) {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}
		body = resp.RawBody()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream for handler %s: %w", handlerID, err)
	}
	return body, nil
}

func readStreamError(resp *resty.Response) *APIError {
	raw := resp.RawBody()
	if raw == nil {
		return newAPIError(resp.StatusCode(), nil, "")
	}
	defer raw.Close()
	data, err := io.ReadAll(io.LimitReader(raw, 64*1024))
	if err != nil {
		return newAPIError(resp.StatusCode(), nil, "")
	}
	return parseAPIError(resp.StatusCode(), data)
}
