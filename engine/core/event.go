package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// StopEventType names the terminal event of an execution stream.
	StopEventType = "StopEvent"
	// BaseEventType is the root of every event type hierarchy.
	BaseEventType = "Event"
)

// WorkflowEvent is one event envelope exchanged with the workflow server.
type WorkflowEvent struct {
	Type          string         `json:"type"`
	QualifiedName string         `json:"qualified_name,omitempty"`
	Types         []string       `json:"types,omitempty"`
	Data          map[string]any `json:"value"`
}

// NewEvent builds a client-originated event of the given type.
func NewEvent(eventType string, data map[string]any) *WorkflowEvent {
	if data == nil {
		data = map[string]any{}
	}
	return &WorkflowEvent{
		Type:  eventType,
		Types: []string{eventType, BaseEventType},
		Data:  data,
	}
}

// NewStopEvent builds a terminal event carrying result.
func NewStopEvent(result map[string]any) *WorkflowEvent {
	evt := NewEvent(StopEventType, result)
	evt.Types = []string{StopEventType, BaseEventType}
	return evt
}

// ParseEnvelope decodes one wire envelope.
func ParseEnvelope(raw []byte) (*WorkflowEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid event envelope: malformed JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("invalid event envelope: expected object, got %s", root.Type)
	}
	if root.Get("type").String() == "" && root.Get("qualified_name").String() == "" {
		return nil, fmt.Errorf("invalid event envelope: missing type")
	}
	var evt WorkflowEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	return FromEnvelope(&evt), nil
}

// FromEnvelope fills derived fields of a decoded envelope.
func FromEnvelope(evt *WorkflowEvent) *WorkflowEvent {
	if evt == nil {
		return nil
	}
	if evt.Type == "" && evt.QualifiedName != "" {
		evt.Type = evt.QualifiedName[strings.LastIndex(evt.QualifiedName, ".")+1:]
	}
	if evt.Data == nil {
		evt.Data = map[string]any{}
	}
	return evt
}

// ToEnvelope encodes the event in its wire representation.
func (e *WorkflowEvent) ToEnvelope() ([]byte, error) {
	if e == nil || e.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	out := *e
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	return data, nil
}

// IsStopEvent reports whether the event terminates its stream.
func (e *WorkflowEvent) IsStopEvent() bool {
	if e == nil {
		return false
	}
	if e.Type == StopEventType || slices.Contains(e.Types, StopEventType) {
		return true
	}
	return strings.HasSuffix(e.QualifiedName, "."+StopEventType)
}

// Is reports whether the event is of eventType, directly or by inheritance.
func (e *WorkflowEvent) Is(eventType string) bool {
	if e == nil {
		return false
	}
	return e.Type == eventType || slices.Contains(e.Types, eventType)
}

// Clone returns a deep copy of the event.
func (e *WorkflowEvent) Clone() *WorkflowEvent {
	if e == nil {
		return nil
	}
	return DeepCopy(e)
}
