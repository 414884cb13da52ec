package prompt

import (
	"strings"

	"github.com/go-go-golems/autocot/pkg/inference/tools"
)

const (
	// MaxIterationNotice is appended to tool feedback on the last permitted round.
	MaxIterationNotice = "YOU HAVE REACHED THE MAXIMUM ITERATION COST. OUTPUT YOUR FINAL RESPONSE NOW."
)

// MissingFinalAnswerAlert is sent as a user turn when a terminal round lacks
// the final-answer segment.
var MissingFinalAnswerAlert = Header(SegmentSystemAlert) + "\nNo `" + Header(SegmentFinalAnswer) +
	"` tag detected in the response. This response is invalid. Please ensure your final response includes the `" +
	Header(SegmentFinalAnswer) + "` tag and try again."

// FeedbackFormatter turns a tool result into the text of a tool turn.
type FeedbackFormatter interface {
	Format(result tools.ToolResult, lastRound bool) string
}

type FeedbackFormatterFunc func(result tools.ToolResult, lastRound bool) string

func (f FeedbackFormatterFunc) Format(result tools.ToolResult, lastRound bool) string {
	return f(result, lastRound)
}

// DefaultFeedback renders
//
//	<header>system_feedback</header>
//	Tool Result:
//	<value>
//
// with failed results prefixed by "Error: ".
var DefaultFeedback FeedbackFormatter = FeedbackFormatterFunc(func(result tools.ToolResult, lastRound bool) string {
	var sb strings.Builder
	sb.WriteString(Header(SegmentSystemFeedback))
	sb.WriteString("\nTool Result:\n")
	if !result.OK() {
		sb.WriteString("Error: ")
	}
	sb.WriteString(result.Value)
	if lastRound {
		sb.WriteString("\n")
		sb.WriteString(Header(SegmentSystemFeedback))
		sb.WriteString("\n")
		sb.WriteString(MaxIterationNotice)
	}
	return sb.String()
})
