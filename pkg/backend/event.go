package backend

import "fmt"

type EventKind int

const (
	EventTextDelta EventKind = iota + 1
	EventStreamEnd
	EventStreamError
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text-delta"
	case EventStreamEnd:
		return "stream-end"
	case EventStreamError:
		return "stream-error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// StreamEvent is what every provider stream is normalized to. A stream is any
// number of TextDelta events followed by exactly one StreamEnd or StreamError.
type StreamEvent struct {
	Kind  EventKind
	Text  string
	Error *StreamFailure
}

func TextDelta(s string) StreamEvent {
	return StreamEvent{Kind: EventTextDelta, Text: s}
}

func StreamEnd() StreamEvent {
	return StreamEvent{Kind: EventStreamEnd}
}

func StreamError(kind ErrorKind, err error) StreamEvent {
	return StreamEvent{Kind: EventStreamError, Error: &StreamFailure{Kind: kind, Err: err}}
}

func (e StreamEvent) Terminal() bool {
	return e.Kind == EventStreamEnd || e.Kind == EventStreamError
}
