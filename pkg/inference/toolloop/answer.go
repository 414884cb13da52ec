package toolloop

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/prompt"
)

// FinalAnswer is the outcome of one user message.
type FinalAnswer struct {
	// Text is the plain text of the terminal round.
	Text string
	// Answer is the final-answer segment of Text, or Text when there is none.
	Answer       string
	RoundLimited bool
	// Rounds are the rounds of the exchange in order.
	Rounds []conversation.RoundRecord
}

func newFinalAnswer(text string, roundLimited bool, rounds []conversation.RoundRecord) *FinalAnswer {
	answer, ok := prompt.FinalAnswer(text)
	if !ok {
		answer = text
	}
	return &FinalAnswer{
		Text:         text,
		Answer:       answer,
		RoundLimited: roundLimited,
		Rounds:       rounds,
	}
}

// Trail renders one line per round.
func (f *FinalAnswer) Trail() string {
	return FormatTrail(f.Rounds)
}

func FormatTrail(rounds []conversation.RoundRecord) string {
	var sb strings.Builder
	for _, r := range rounds {
		fmt.Fprintf(&sb, "round %d: %d invocation(s), %d attempt(s), %s", r.Index, len(r.Invocations), r.Attempts, r.Duration.Round(1e6))
		if r.Terminal {
			sb.WriteString(", terminal")
		}
		if r.Annotation != "" {
			sb.WriteString(", " + r.Annotation)
		}
		if r.Error != "" {
			sb.WriteString(", error: " + r.Error)
		}
		for _, res := range r.Results {
			fmt.Fprintf(&sb, "\n  %s -> %s", res.Invocation.Name, res.Status)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// bestText picks the text reported when the round limit is hit: the plain text
// of the last round, or else the longest plain text of an earlier round.
func bestText(rounds []conversation.RoundRecord) string {
	if len(rounds) == 0 {
		return ""
	}
	last := rounds[len(rounds)-1].PlainText
	if strings.TrimSpace(last) != "" {
		return last
	}
	best := ""
	for _, r := range rounds[:len(rounds)-1] {
		if len(r.PlainText) > len(best) {
			best = r.PlainText
		}
	}
	return best
}
