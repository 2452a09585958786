package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// APIError represents a non-2xx response from the workflow server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// errorBody covers both {"detail": ...} and {"error": ...} server payloads.
type errorBody struct {
	Detail  any    `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newAPIError(status int, body *errorBody, raw string) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	if body != nil {
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		}
		if detail, ok := body.Detail.(string); ok && detail != "" {
			apiErr.Details = detail
		} else if body.Detail != nil {
			apiErr.Details = fmt.Sprint(body.Detail)
		}
	}
	if apiErr.Details == "" && apiErr.Message == http.StatusText(status) {
		apiErr.Details = strings.TrimSpace(raw)
	}
	if apiErr.Message == "" {
		apiErr.Message = "request failed"
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsNetworkError reports whether err originated below HTTP.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsTimeoutError reports whether err is a deadline or transport timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryable reports whether a request may be retried after err or status.
func IsRetryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && (IsNetworkError(err) || IsTimeoutError(err))
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return status >= http.StatusInternalServerError
	}
}
