package toolcode

import "strings"

type EventKind int

const (
	EventPlainText EventKind = iota + 1
	EventToolInvocation
)

func (k EventKind) String() string {
	switch k {
	case EventPlainText:
		return "plain-text"
	case EventToolInvocation:
		return "tool-invocation"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range [Start, End) into the scanned stream.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Invocation is a complete tool block recognized in the stream.
type Invocation struct {
	Name    string `json:"name" yaml:"name"`
	RawArgs string `json:"raw_args" yaml:"raw_args"`
	Span    Span   `json:"span" yaml:"span"`
	// Raw is the block text including both markers.
	Raw string `json:"raw" yaml:"raw"`
	// SplitError is set when the grammar could not extract a tool name from the block.
	SplitError string `json:"split_error,omitempty" yaml:"split_error,omitempty"`
}

type ScanEvent struct {
	Kind       EventKind
	Text       string
	Invocation *Invocation
}

func PlainText(s string) ScanEvent {
	return ScanEvent{Kind: EventPlainText, Text: s}
}

func ToolInvocation(inv Invocation) ScanEvent {
	return ScanEvent{Kind: EventToolInvocation, Invocation: &inv}
}

// Raw returns the exact stream text this event accounts for.
func (e ScanEvent) Raw() string {
	if e.Kind == EventToolInvocation && e.Invocation != nil {
		return e.Invocation.Raw
	}
	return e.Text
}

// Reconstruct concatenates the raw text of events in order.
func Reconstruct(events []ScanEvent) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(e.Raw())
	}
	return sb.String()
}

// Coalesce merges adjacent plain text events. Two scans of the same text with
// different chunking produce identical coalesced sequences.
func Coalesce(events []ScanEvent) []ScanEvent {
	ret := make([]ScanEvent, 0, len(events))
	for _, e := range events {
		if e.Kind == EventPlainText {
			if e.Text == "" {
				continue
			}
			if n := len(ret); n > 0 && ret[n-1].Kind == EventPlainText {
				ret[n-1].Text += e.Text
				continue
			}
		}
		ret = append(ret, e)
	}
	return ret
}

type Warning struct {
	Offset  int    `json:"offset" yaml:"offset"`
	Message string `json:"message" yaml:"message"`
}
