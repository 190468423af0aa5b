package models

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author kind of a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentFormatVersion is the current wire format for message content.
const ContentFormatVersion = 2

// PartKind discriminates the Part union.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindTool PartKind = "tool-invocation"
	PartKindStep PartKind = "step"
	PartKindData PartKind = "data"
)

// ToolState tracks the lifecycle of a tool invocation part.
type ToolState string

const (
	// ToolStateCall: the call was emitted and a result is still expected.
	ToolStateCall ToolState = "call"
	// ToolStateResult: the invocation completed with a result.
	ToolStateResult ToolState = "result"
	// ToolStatePending: the turn was suspended or aborted with the call
	// outstanding; persisted as-is.
	ToolStatePending ToolState = "pending"
)

// Part is one typed unit of message content. The concrete types below are
// the closed set; consumers must switch exhaustively so no part kind is
// silently dropped.
type Part interface {
	Kind() PartKind
}

// TextPart holds a run of assistant or user text.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) Kind() PartKind { return PartKindText }

// ToolPart records a tool invocation and, once available, its result.
type ToolPart struct {
	ToolName string          `json:"tool_name"`
	CallID   string          `json:"call_id"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	State    ToolState       `json:"state"`
}

func (ToolPart) Kind() PartKind { return PartKindTool }

// StepPart marks a step boundary within a multi-step turn.
type StepPart struct {
	Marker string `json:"marker"`
}

func (StepPart) Kind() PartKind { return PartKindStep }

// DataPart carries arbitrary typed payloads (progress updates, file
// references, ...). DataKind is open-ended; unknown kinds round-trip
// losslessly through the raw payload.
type DataPart struct {
	DataKind string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (DataPart) Kind() PartKind { return PartKindData }

// Content is the ordered part sequence of one message. Part order is
// append-only and mirrors the emission order of the generation loop.
type Content struct {
	FormatVersion int    `json:"format"`
	Parts         []Part `json:"parts"`
}

// partEnvelope is the persisted representation of a Part: the concrete
// part fields plus a type tag.
type partEnvelope struct {
	Type PartKind `json:"type"`

	// text
	Text string `json:"text,omitempty"`
	// tool-invocation
	ToolName string          `json:"tool_name,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	State    ToolState       `json:"state,omitempty"`
	// step
	Marker string `json:"marker,omitempty"`
	// data
	DataKind string          `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	envs := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			envs = append(envs, partEnvelope{Type: PartKindText, Text: v.Text})
		case ToolPart:
			envs = append(envs, partEnvelope{Type: PartKindTool, ToolName: v.ToolName, CallID: v.CallID, Args: v.Args, Result: v.Result, State: v.State})
		case StepPart:
			envs = append(envs, partEnvelope{Type: PartKindStep, Marker: v.Marker})
		case DataPart:
			envs = append(envs, partEnvelope{Type: PartKindData, DataKind: v.DataKind, Payload: v.Payload})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(struct {
		FormatVersion int            `json:"format"`
		Parts         []partEnvelope `json:"parts"`
	}{FormatVersion: c.FormatVersion, Parts: envs})
}

func (c *Content) UnmarshalJSON(b []byte) error {
	var raw struct {
		FormatVersion int            `json:"format"`
		Parts         []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.FormatVersion = raw.FormatVersion
	c.Parts = make([]Part, 0, len(raw.Parts))
	for i, e := range raw.Parts {
		switch e.Type {
		case PartKindText:
			c.Parts = append(c.Parts, TextPart{Text: e.Text})
		case PartKindTool:
			c.Parts = append(c.Parts, ToolPart{ToolName: e.ToolName, CallID: e.CallID, Args: e.Args, Result: e.Result, State: e.State})
		case PartKindStep:
			c.Parts = append(c.Parts, StepPart{Marker: e.Marker})
		case PartKindData:
			c.Parts = append(c.Parts, DataPart{DataKind: e.DataKind, Payload: e.Payload})
		default:
			return fmt.Errorf("unknown part type %q at index %d", e.Type, i)
		}
	}
	return nil
}

// Message is one fully persisted turn. Immutable once stored; Seq is the
// per-thread sequence number assigned by the store on append.
type Message struct {
	ID         string  `json:"id"`
	ThreadID   string  `json:"thread"`
	ResourceID string  `json:"resource,omitempty"`
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	Seq        uint64  `json:"seq,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
}

// TextContent concatenates the message's text parts. Used as the
// embedding source for semantic indexing.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Content.Parts {
		if tp, ok := p.(TextPart); ok {
			if out != "" {
				out += "\n"
			}
			out += tp.Text
		}
	}
	return out
}
