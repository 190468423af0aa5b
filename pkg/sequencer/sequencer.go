// Package sequencer folds the ordered event stream of one in-progress
// agent turn into the ordered part sequence of a single message.
//
// The sequencer is the component that protects the emission-order
// invariant: a text part is closed and appended to the buffer before any
// later event is applied, so "text, then tool-call" is always recorded as
// [Text, ToolInvocation] no matter how persistence is scheduled. Nothing
// is written downstream until Finalize; a turn is persisted whole.
//
// One sequencer serves one turn and is driven by a single cooperative
// caller; it is not safe for concurrent use.
package sequencer

import (
	"encoding/json"

	"github.com/google/uuid"

	"memodb/pkg/errs"
	"memodb/pkg/models"
)

// EventType enumerates generation-loop events.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventTextEnd    EventType = "text-end"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventStepStart  EventType = "step-start"
	EventStepEnd    EventType = "step-end"
	EventData       EventType = "data"
)

// Event is one discrete generation event. Only the fields relevant to the
// event type are consulted.
type Event struct {
	Type EventType

	// text-delta
	Text string

	// tool-call / tool-result
	ToolName string
	CallID   string
	Args     json.RawMessage
	Result   json.RawMessage
	// Suspended marks a tool-call explicitly emitted as open (a suspended
	// or partial turn); it is buffered pending and never blocks Finalize.
	Suspended bool

	// step-start / step-end
	Marker string

	// data
	DataKind string
	Payload  json.RawMessage
}

type state string

const (
	stateIdle      state = "idle"
	stateText      state = "accumulating-text"
	stateFinalized state = "finalized"
)

// Sequencer accumulates one turn. Create with New, feed with Ingest,
// terminate with exactly one Finalize or FinalizePartial call.
type Sequencer struct {
	threadID   string
	resourceID string
	role       string

	st        state
	parts     []models.Part
	textBuf   []byte
	openTools map[string]int // call id -> index into parts
}

// New returns a sequencer for a single turn in the given thread.
func New(threadID, resourceID, role string) *Sequencer {
	if role == "" {
		role = models.RoleAssistant
	}
	return &Sequencer{
		threadID:   threadID,
		resourceID: resourceID,
		role:       role,
		st:         stateIdle,
		openTools:  make(map[string]int),
	}
}

// Ingest applies one event. Events must arrive in emission order; the
// caller awaits each Ingest before issuing the next.
func (s *Sequencer) Ingest(ev Event) error {
	if s.st == stateFinalized {
		return &errs.SequencingError{State: string(s.st), Reason: "ingest after finalize"}
	}

	switch ev.Type {
	case EventTextDelta:
		s.st = stateText
		s.textBuf = append(s.textBuf, ev.Text...)
		return nil
	case EventTextEnd:
		s.closeText()
		return nil
	}

	// Any non-text event closes an accumulating text part first, so the
	// buffer order matches emission order.
	s.closeText()

	switch ev.Type {
	case EventToolCall:
		st := models.ToolStateCall
		if ev.Suspended {
			st = models.ToolStatePending
		}
		s.parts = append(s.parts, models.ToolPart{
			ToolName: ev.ToolName,
			CallID:   ev.CallID,
			Args:     ev.Args,
			State:    st,
		})
		if !ev.Suspended {
			s.openTools[ev.CallID] = len(s.parts) - 1
		}
	case EventToolResult:
		idx, ok := s.openTools[ev.CallID]
		if !ok {
			return &errs.SequencingError{State: string(s.st), Reason: "tool result for unknown call " + ev.CallID}
		}
		tp := s.parts[idx].(models.ToolPart)
		tp.Result = ev.Result
		tp.State = models.ToolStateResult
		s.parts[idx] = tp
		delete(s.openTools, ev.CallID)
	case EventStepStart:
		s.parts = append(s.parts, models.StepPart{Marker: markerOr(ev.Marker, "step-start")})
	case EventStepEnd:
		s.parts = append(s.parts, models.StepPart{Marker: markerOr(ev.Marker, "step-end")})
	case EventData:
		s.parts = append(s.parts, models.DataPart{DataKind: ev.DataKind, Payload: ev.Payload})
	default:
		return &errs.SequencingError{State: string(s.st), Reason: "unknown event type " + string(ev.Type)}
	}
	return nil
}

// Finalize closes the turn and yields the immutable message. It fails with
// a SequencingError if any in-flight part is still open: text without a
// terminating event, or a tool call with no result that was not explicitly
// marked suspended.
func (s *Sequencer) Finalize() (models.Message, error) {
	if s.st == stateFinalized {
		return models.Message{}, &errs.SequencingError{State: string(s.st), Reason: "finalize already called"}
	}
	if s.st == stateText {
		return models.Message{}, &errs.SequencingError{State: string(s.st), Reason: "text part not closed"}
	}
	if len(s.openTools) > 0 {
		return models.Message{}, &errs.SequencingError{State: string(s.st), Reason: "open tool calls awaiting results"}
	}
	return s.seal(), nil
}

// FinalizePartial closes an aborted turn: parts already closed are kept in
// order, an in-progress text accumulation is dropped, and open tool calls
// are downgraded to pending rather than discarded.
func (s *Sequencer) FinalizePartial() (models.Message, error) {
	if s.st == stateFinalized {
		return models.Message{}, &errs.SequencingError{State: string(s.st), Reason: "finalize already called"}
	}
	s.textBuf = nil
	for id, idx := range s.openTools {
		tp := s.parts[idx].(models.ToolPart)
		tp.State = models.ToolStatePending
		s.parts[idx] = tp
		delete(s.openTools, id)
	}
	return s.seal(), nil
}

func (s *Sequencer) seal() models.Message {
	s.st = stateFinalized
	parts := make([]models.Part, len(s.parts))
	copy(parts, s.parts)
	return models.Message{
		ID:         uuid.NewString(),
		ThreadID:   s.threadID,
		ResourceID: s.resourceID,
		Role:       s.role,
		Content:    models.Content{FormatVersion: models.ContentFormatVersion, Parts: parts},
	}
}

// closeText flushes the text accumulator into the part buffer, if open.
func (s *Sequencer) closeText() {
	if s.st != stateText {
		return
	}
	s.parts = append(s.parts, models.TextPart{Text: string(s.textBuf)})
	s.textBuf = s.textBuf[:0]
	s.st = stateIdle
}

func markerOr(m, def string) string {
	if m != "" {
		return m
	}
	return def
}
