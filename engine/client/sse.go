package client

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"time"
)

// Frame is a single Server-Sent Events message.
type Frame struct {
	ID    string
	Event string
	Data  []byte
	Retry time.Duration
}

// Decoder reads SSE frames from a stream, skipping comments and empty frames.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a decoder whose lines may be at most maxLine bytes.
func NewDecoder(r io.Reader, maxLine int) *Decoder {
	if maxLine <= 0 {
		maxLine = bufio.MaxScanTokenSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(maxLine, 64*1024)), maxLine)
	return &Decoder{scanner: scanner}
}

// Next returns the next frame carrying data, or io.EOF once the stream ends.
func (d *Decoder) Next() (Frame, error) {
	var frame Frame
	var data bytes.Buffer
	hasData := false
	for d.scanner.Scan() {
		line := bytes.TrimSuffix(d.scanner.Bytes(), []byte("\r"))
		if len(line) == 0 {
			if hasData {
				frame.Data = append([]byte(nil), data.Bytes()...)
				return frame, nil
			}
			frame = Frame{}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "event":
			frame.Event = string(value)
		case "id":
			frame.ID = string(value)
		case "retry":
			if ms, err := strconv.Atoi(string(value)); err == nil {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if hasData {
		frame.Data = append([]byte(nil), data.Bytes()...)
		return frame, nil
	}
	return Frame{}, io.EOF
}

func splitField(line []byte) (string, []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), nil
	}
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:idx]), value
}
