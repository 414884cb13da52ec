package prompt

import (
	"regexp"
	"strings"
)

const (
	headerOpen  = "<reactAgentSegmentHeader>"
	headerClose = "</reactAgentSegmentHeader>"
)

// Segment names used by the agent protocol.
const (
	SegmentThink          = "think"
	SegmentCallToolCode   = "call_tool_code"
	SegmentSystemFeedback = "system_feedback"
	SegmentSystemAlert    = "system_alert"
	SegmentFinalAnswer    = "send_response_to_user"
	SegmentCharacter      = "agent_character"
	SegmentTools          = "agent_tools"
	SegmentResponseTags   = "agent_response_tags"
)

// Header renders the segment header for name.
func Header(name string) string {
	return headerOpen + name + headerClose
}

type Segment struct {
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

// ParseSegments splits text into its headed segments in order. Text before
// the first header is ignored.
func ParseSegments(text string) []Segment {
	ret := []Segment{}
	idx := strings.Index(text, headerOpen)
	for idx >= 0 {
		rest := text[idx:]
		end := strings.Index(rest, headerClose)
		if end < 0 {
			break
		}
		name := strings.TrimSpace(rest[len(headerOpen):end])
		body := rest[end+len(headerClose):]
		next := strings.Index(body, headerOpen)
		content := body
		if next >= 0 {
			content = body[:next]
		}
		if isSegmentName(name) {
			ret = append(ret, Segment{Name: name, Content: strings.TrimSpace(content)})
		}
		if next < 0 {
			break
		}
		idx = idx + end + len(headerClose) + next
	}
	return ret
}

var segmentNamePattern = regexp.MustCompile(`^\w+$`)

func isSegmentName(s string) bool {
	return segmentNamePattern.MatchString(s)
}

// HasFinalAnswer reports whether text contains the final-answer header.
func HasFinalAnswer(text string) bool {
	return strings.Contains(text, Header(SegmentFinalAnswer))
}

// FinalAnswer returns the content of the last final-answer segment.
func FinalAnswer(text string) (string, bool) {
	segments := ParseSegments(text)
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].Name == SegmentFinalAnswer {
			return segments[i].Content, true
		}
	}
	return "", false
}
