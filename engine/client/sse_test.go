package client

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Next(t *testing.T) {
	t.Run("Should decode consecutive frames", func(t *testing.T) {
		input := "id: 1\ndata: {\"a\":1}\n\nevent: message\ndata: {\"b\":2}\n\n"
		dec := NewDecoder(strings.NewReader(input), 0)
		first, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, "1", first.ID)
		assert.Equal(t, `{"a":1}`, string(first.Data))
		second, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, "message", second.Event)
		assert.Equal(t, `{"b":2}`, string(second.Data))
		_, err = dec.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Should join multi-line data and skip comments", func(t *testing.T) {
		input := ": heartbeat\n\ndata: line1\ndata: line2\nretry: 1500\n\n"
		frame, err := NewDecoder(strings.NewReader(input), 0).Next()
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2", string(frame.Data))
		assert.Equal(t, 1500*time.Millisecond, frame.Retry)
	})

	t.Run("Should handle CRLF line endings", func(t *testing.T) {
		frame, err := NewDecoder(strings.NewReader("data: x\r\n\r\n"), 0).Next()
		require.NoError(t, err)
		assert.Equal(t, "x", string(frame.Data))
	})

	t.Run("Should flush a trailing frame without blank line", func(t *testing.T) {
		frame, err := NewDecoder(strings.NewReader("data: tail"), 0).Next()
		require.NoError(t, err)
		assert.Equal(t, "tail", string(frame.Data))
	})

	t.Run("Should fail on lines longer than the limit", func(t *testing.T) {
		input := "data: " + strings.Repeat("x", 128) + "\n\n"
		_, err := NewDecoder(strings.NewReader(input), 32).Next()
		require.Error(t, err)
		assert.NotErrorIs(t, err, io.EOF)
	})
}

func TestOptions_normalize(t *testing.T) {
	t.Run("Should fill defaults and trim the base URL", func(t *testing.T) {
		opts := Options{BaseURL: "http://localhost:9000/"}
		require.NoError(t, opts.normalize())
		assert.Equal(t, "http://localhost:9000", opts.BaseURL)
		assert.Equal(t, DefaultOptions().Timeout, opts.Timeout)
		assert.Equal(t, DefaultOptions().ConnectRetries, opts.ConnectRetries)
	})

	t.Run("Should reject a non HTTP base URL", func(t *testing.T) {
		opts := Options{BaseURL: "ftp://example.com"}
		require.Error(t, opts.normalize())
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("Should retry server errors and throttling", func(t *testing.T) {
		assert.True(t, IsRetryable(500, nil))
		assert.True(t, IsRetryable(503, nil))
		assert.True(t, IsRetryable(429, nil))
		assert.True(t, IsRetryable(408, nil))
		assert.False(t, IsRetryable(404, nil))
		assert.False(t, IsRetryable(200, nil))
	})
}

func TestParseAPIError(t *testing.T) {
	t.Run("Should read the detail field", func(t *testing.T) {
		err := parseAPIError(404, []byte(`{"detail":"Handler not found"}`))
		assert.Equal(t, 404, err.Status)
		assert.Equal(t, "Handler not found", err.Details)
		assert.Contains(t, err.Error(), "Not Found")
	})

	t.Run("Should keep a raw body that is not JSON", func(t *testing.T) {
		err := parseAPIError(502, []byte("bad gateway"))
		assert.Equal(t, "bad gateway", err.Details)
	})
}
