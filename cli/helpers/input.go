package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// ReadJSONObject resolves an --input style argument into a JSON object.
// raw may be empty, "-" for stdin, "@path" for a file, or literal JSON.
func ReadJSONObject(raw string, stdin io.Reader) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	var data []byte
	switch {
	case raw == "":
		return nil, nil
	case raw == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		data = b
	case strings.HasPrefix(raw, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		data = b
	default:
		data = []byte(raw)
	}
	if !gjson.ValidBytes(data) {
		return nil, NewCliError("INVALID_INPUT", "Input is not valid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, NewCliError("INVALID_INPUT", "Input must be a JSON object")
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return out, nil
}
