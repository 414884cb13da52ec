package toolcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScanner(t *testing.T, opts ...Option) *Scanner {
	t.Helper()
	s, err := NewScanner(opts...)
	require.NoError(t, err)
	return s
}

func scanChunks(t *testing.T, s *Scanner, chunks []string) []ScanEvent {
	t.Helper()
	var events []ScanEvent
	for _, c := range chunks {
		events = append(events, s.Feed(c)...)
	}
	return append(events, s.Finish()...)
}

func splitEvery(text string, n int) []string {
	var chunks []string
	for len(text) > n {
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return append(chunks, text)
}

const twoCalls = "Let me check.\n```tool_code\nprint(default_api.calc(expression=\"2+2\"))\n```\n" +
	"and\n```tool_code\nprint(default_api.weather(city='Paris'))\n```\nDone."

func TestScannerSingleChunk(t *testing.T) {
	s := newScanner(t)
	events := Coalesce(scanChunks(t, s, []string{twoCalls}))

	require.Len(t, events, 5)
	assert.Equal(t, PlainText("Let me check.\n"), events[0])

	require.Equal(t, EventToolInvocation, events[1].Kind)
	assert.Equal(t, "calc", events[1].Invocation.Name)
	assert.Equal(t, `expression="2+2"`, events[1].Invocation.RawArgs)
	assert.Equal(t, len("Let me check.\n"), events[1].Invocation.Span.Start)
	assert.Equal(t, twoCalls[events[1].Invocation.Span.Start:events[1].Invocation.Span.End], events[1].Invocation.Raw)

	assert.Equal(t, PlainText("\nand\n"), events[2])
	assert.Equal(t, "weather", events[3].Invocation.Name)
	assert.Equal(t, "city='Paris'", events[3].Invocation.RawArgs)
	assert.Equal(t, PlainText("\nDone."), events[4])

	assert.Empty(t, s.Warnings())
	assert.Equal(t, twoCalls, Reconstruct(events))
}

func TestScannerLosslessAcrossChunkSizes(t *testing.T) {
	texts := []string{
		twoCalls,
		"no tools at all, just ``` fences and `backticks`",
		"trailing partial marker ```tool_c",
		"```tool_code\nprint(default_api.echo(text=\"```tool_code\"))\n```",
		"unicode ✓ before\n```tool_code\nprint(default_api.echo(text=\"héllo ✓\"))\n```✓ after",
		"open but never closed\n```tool_code\nprint(default_api.calc(",
		"short\n```tool_code\nprint(default_api.now())\n```\nthen a long one\n```tool_code\nprint(default_api.echo(text=\"" + strings.Repeat("✓", 20) + "\"))\n```!",
		"```tool_code\n" + strings.Repeat("✓", 20) + "\n```",
	}

	options := map[string][]Option{
		"default":      nil,
		"max block 40": {WithMaxBlockBytes(40)},
		"max block 41": {WithMaxBlockBytes(41)},
	}
	for name, opts := range options {
		for _, text := range texts {
			reference := Coalesce(scanChunks(t, newScanner(t, opts...), []string{text}))
			for n := 1; n <= 17; n++ {
				events := scanChunks(t, newScanner(t, opts...), splitEvery(text, n))
				assert.Equal(t, text, Reconstruct(events), "%s, chunk size %d", name, n)
				assert.Equal(t, reference, Coalesce(events), "%s, chunk size %d", name, n)
			}
		}
	}
}

func TestScannerHoldsBackOnlyMarkerPrefix(t *testing.T) {
	s := newScanner(t)

	events := s.Feed("hello ``")
	require.Len(t, events, 1)
	assert.Equal(t, "hello ", events[0].Text)

	events = s.Feed("x")
	require.Len(t, events, 1)
	assert.Equal(t, "``x", events[0].Text)

	assert.Empty(t, s.Finish())
}

func TestScannerDoesNotSplitRunes(t *testing.T) {
	s := newScanner(t)
	check := "✓"
	events := s.Feed("a" + check[:1])
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Text)

	events = s.Feed(check[1:])
	require.Len(t, events, 1)
	assert.Equal(t, check, events[0].Text)
}

func TestScannerNothingEmittedInsideBlock(t *testing.T) {
	s := newScanner(t)
	events := s.Feed("```tool_code\nprint(default_api.calc(expression=\"1\"")
	assert.Empty(t, events)
	events = s.Feed("))")
	assert.Empty(t, events)
	events = s.Feed("\n```")
	require.Len(t, events, 1)
	assert.Equal(t, "calc", events[0].Invocation.Name)
}

func TestScannerTruncatedBlock(t *testing.T) {
	s := newScanner(t)
	text := "before\n```tool_code\nprint(default_api.calc(expression=\"2+"
	events := scanChunks(t, s, splitEvery(text, 3))

	assert.Equal(t, text, Reconstruct(events))
	for _, e := range events {
		assert.Equal(t, EventPlainText, e.Kind)
	}
	last := events[len(events)-1]
	assert.Equal(t, text[len("before\n"):], last.Text)

	warnings := s.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, len("before\n"), warnings[0].Offset)
	assert.Contains(t, warnings[0].Message, "unterminated")
}

func TestScannerNestedStartIsLiteral(t *testing.T) {
	s := newScanner(t, WithMarkers(Markers{Start: "<tool>", End: "</tool>"}))
	text := "x<tool>echo(text=\"<tool>\")</tool>y"
	events := Coalesce(scanChunks(t, s, splitEvery(text, 2)))

	require.Len(t, events, 3)
	assert.Equal(t, "echo", events[1].Invocation.Name)
	assert.Equal(t, `text="<tool>"`, events[1].Invocation.RawArgs)
	assert.Equal(t, text, Reconstruct(events))
}

func TestScannerSplitErrorStillEmitsInvocation(t *testing.T) {
	s := newScanner(t)
	text := "```tool_code\nthis is not a call\n```"
	events := scanChunks(t, s, []string{text})

	require.Len(t, events, 1)
	inv := events[0].Invocation
	require.NotNil(t, inv)
	assert.Empty(t, inv.Name)
	assert.NotEmpty(t, inv.SplitError)
	assert.Equal(t, "this is not a call", inv.RawArgs)
	assert.Equal(t, text, Reconstruct(events))
}

func TestScannerMaxBlockBytes(t *testing.T) {
	s := newScanner(t, WithMaxBlockBytes(32))
	text := "```tool_code\n" + strings.Repeat("x", 64) + "\n```tail"
	events := scanChunks(t, s, splitEvery(text, 8))

	assert.Equal(t, text, Reconstruct(events))
	for _, e := range events {
		assert.Equal(t, EventPlainText, e.Kind)
	}
	require.NotEmpty(t, s.Warnings())
	assert.Contains(t, s.Warnings()[0].Message, "maximum size")
}

func TestScannerMaxBlockBytesOneChunk(t *testing.T) {
	block := "```tool_code\nprint(default_api.echo(text=\"" + strings.Repeat("y", 50) + "\"))\n```"
	text := "a " + block + " b"

	whole := Coalesce(scanChunks(t, newScanner(t, WithMaxBlockBytes(40)), []string{text}))
	bytewise := Coalesce(scanChunks(t, newScanner(t, WithMaxBlockBytes(40)), splitEvery(text, 1)))
	require.Len(t, whole, 1)
	assert.Equal(t, EventPlainText, whole[0].Kind)
	assert.Equal(t, whole, bytewise)

	events := Coalesce(scanChunks(t, newScanner(t, WithMaxBlockBytes(len(block))), []string{text}))
	require.Len(t, events, 3)
	assert.Equal(t, EventToolInvocation, events[1].Kind)
	assert.Equal(t, "echo", events[1].Invocation.Name)
}

func TestScannerReset(t *testing.T) {
	s := newScanner(t)
	_ = s.Feed("```tool_code\nunfinished")
	_ = s.Finish()
	require.Len(t, s.Warnings(), 1)

	s.Reset()
	events := scanChunks(t, s, []string{"```tool_code\nprint(default_api.now())\n```"})
	require.Len(t, events, 1)
	assert.Equal(t, "now", events[0].Invocation.Name)
	assert.Equal(t, 0, events[0].Invocation.Span.Start)
	assert.Empty(t, s.Warnings())
}

func TestNewScannerRejectsEmptyMarkers(t *testing.T) {
	_, err := NewScanner(WithMarkers(Markers{Start: "", End: "x"}))
	assert.Error(t, err)
}
