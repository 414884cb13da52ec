package events

import (
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeRoundStart     EventType = "round-start"
	EventTypePartial        EventType = "partial"
	EventTypeToolCodeStart  EventType = "toolcode-start"
	EventTypeToolCodeResult EventType = "toolcode-result"
	EventTypeWarning        EventType = "warning"
	EventTypeInfo           EventType = "info"
	EventTypeError          EventType = "error"
	EventTypeFinal          EventType = "final"
	EventTypeInterrupt      EventType = "interrupt"

	// Debugger pause event (step-mode)
	EventTypeDebuggerPause EventType = "debugger.pause"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// set when the event was decoded with NewEventFromJSON
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

// EventRoundStart is published when a round (or a retry attempt of it) opens its stream.
type EventRoundStart struct {
	EventImpl
	MaxRounds int `json:"max_rounds"`
}

func NewRoundStartEvent(metadata EventMetadata, maxRounds int) *EventRoundStart {
	return &EventRoundStart{
		EventImpl: EventImpl{Type_: EventTypeRoundStart, Metadata_: metadata},
		MaxRounds: maxRounds,
	}
}

var _ Event = &EventRoundStart{}

// EventPartial carries one resolved chunk of plain text, in emission order.
// Completion is the plain text of the round so far.
type EventPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialEvent(metadata EventMetadata, delta string, completion string) *EventPartial {
	return &EventPartial{
		EventImpl:  EventImpl{Type_: EventTypePartial, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartial{}

func (e EventPartial) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("delta", e.Delta)
}

type ToolCall struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Args  string `json:"args" yaml:"args"`
	Raw   string `json:"raw,omitempty" yaml:"-"`
}

// EventToolCodeStart is published when the scanner recognizes a complete tool block.
type EventToolCodeStart struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCodeStartEvent(metadata EventMetadata, call ToolCall) *EventToolCodeStart {
	return &EventToolCodeStart{
		EventImpl: EventImpl{Type_: EventTypeToolCodeStart, Metadata_: metadata},
		ToolCall:  call,
	}
}

var _ Event = &EventToolCodeStart{}

type ToolResult struct {
	Index      int    `json:"index" yaml:"index"`
	Name       string `json:"name" yaml:"name"`
	Status     string `json:"status" yaml:"status"`
	ErrorType  string `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Value      string `json:"value" yaml:"value"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

type EventToolCodeResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolCodeResultEvent(metadata EventMetadata, result ToolResult) *EventToolCodeResult {
	return &EventToolCodeResult{
		EventImpl:  EventImpl{Type_: EventTypeToolCodeResult, Metadata_: metadata},
		ToolResult: result,
	}
}

var _ Event = &EventToolCodeResult{}

// EventWarning reports recoverable anomalies such as an unterminated tool block.
type EventWarning struct {
	EventImpl
	Message string `json:"message"`
	Offset  int    `json:"offset,omitempty"`
}

func NewWarningEvent(metadata EventMetadata, message string, offset int) *EventWarning {
	return &EventWarning{
		EventImpl: EventImpl{Type_: EventTypeWarning, Metadata_: metadata},
		Message:   message,
		Offset:    offset,
	}
}

var _ Event = &EventWarning{}

// EventInfo is a lightweight informational message for user-facing notifications
type EventInfo struct {
	EventImpl
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func NewInfoEvent(metadata EventMetadata, message string, data map[string]interface{}) *EventInfo {
	return &EventInfo{
		EventImpl: EventImpl{Type_: EventTypeInfo, Metadata_: metadata},
		Message:   message,
		Data:      data,
	}
}

var _ Event = &EventInfo{}

func (e EventInfo) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("message", e.Message)
	if len(e.Data) > 0 {
		ev.Dict("data", zerolog.Dict().Fields(e.Data))
	}
}

type EventError struct {
	EventImpl
	Kind        string `json:"kind,omitempty"`
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, kind string, err error) *EventError {
	s := ""
	if err != nil {
		s = err.Error()
	}
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		Kind:        kind,
		ErrorString: s,
	}
}

var _ Event = &EventError{}

type EventFinal struct {
	EventImpl
	Text         string `json:"text"`
	Answer       string `json:"answer,omitempty"`
	RoundLimited bool   `json:"round_limited,omitempty"`
}

func NewFinalEvent(metadata EventMetadata, text string, answer string, roundLimited bool) *EventFinal {
	return &EventFinal{
		EventImpl:    EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:         text,
		Answer:       answer,
		RoundLimited: roundLimited,
	}
}

var _ Event = &EventFinal{}

// EventInterrupt is published when a conversation is canceled. Text is the
// plain text accumulated before cancellation.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventInterrupt{}

// EventDebuggerPause is emitted when the loop pauses for step-mode debugging.
type EventDebuggerPause struct {
	EventImpl
	PauseID    string         `json:"pause_id"`
	Phase      string         `json:"phase"`
	Summary    string         `json:"summary"`
	DeadlineMs int64          `json:"deadline_ms"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func NewDebuggerPauseEvent(metadata EventMetadata, pauseID string, phase string, summary string, deadlineMs int64, extra map[string]any) *EventDebuggerPause {
	if extra == nil {
		extra = map[string]any{}
	}
	return &EventDebuggerPause{
		EventImpl:  EventImpl{Type_: EventTypeDebuggerPause, Metadata_: metadata},
		PauseID:    pauseID,
		Phase:      phase,
		Summary:    summary,
		DeadlineMs: deadlineMs,
		Extra:      extra,
	}
}

var _ Event = &EventDebuggerPause{}
