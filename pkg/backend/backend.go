package backend

import (
	"context"
	"strings"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Request is everything a backend needs to open one round's stream.
type Request struct {
	SystemPrompt string
	Turns        []conversation.Turn
	Settings     *settings.ChatSettings
}

// Backend opens a streaming completion and normalizes it to StreamEvents.
//
// The returned channel delivers TextDelta events followed by exactly one
// terminal event and is then closed. Consumers must drain it until it closes.
// Cancelling ctx closes the provider stream and yields StreamError(canceled)
// or StreamError(timeout) for deadlines.
type Backend interface {
	Name() string
	OpenStream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// Producer pulls deltas from a provider stream and hands them to emit until the
// provider is done. A nil return means the stream ended normally.
type Producer func(ctx context.Context, emit func(delta string) error) error

const streamBuffer = 16

// Stream runs produce in its own goroutine and turns its outcome into a
// terminated event channel. Panics in produce are reported as malformed streams.
func Stream(ctx context.Context, name string, produce Producer) <-chan StreamEvent {
	ch := make(chan StreamEvent, streamBuffer)

	go func() {
		defer close(ch)

		emit := func(delta string) error {
			if delta == "" {
				return nil
			}
			select {
			case ch <- TextDelta(delta):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &StreamFailure{Kind: ErrorKindMalformed, Err: errors.Errorf("panic in %s stream: %v", name, r)}
				}
			}()
			return produce(ctx, emit)
		}()

		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			f := Failure(err)
			log.Debug().Str("backend", name).Str("kind", string(f.Kind)).Err(f.Err).Msg("stream failed")
			ch <- StreamEvent{Kind: EventStreamError, Error: f}
			return
		}
		log.Trace().Str("backend", name).Msg("stream ended")
		ch <- StreamEnd()
	}()

	return ch
}

// SplitSystem separates system turns from the rest and joins them onto the
// configured system prompt.
func SplitSystem(systemPrompt string, turns []conversation.Turn) (string, []conversation.Turn) {
	parts := []string{}
	if systemPrompt != "" {
		parts = append(parts, systemPrompt)
	}
	rest := make([]conversation.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == conversation.RoleSystem {
			parts = append(parts, t.Content)
			continue
		}
		rest = append(rest, t)
	}
	return strings.Join(parts, "\n\n"), rest
}

// MergeConsecutive joins adjacent turns that map to the same provider role.
// Providers such as Gemini reject two user messages in a row, which happens
// when tool feedback is sent as user text.
func MergeConsecutive(turns []conversation.Turn, roleOf func(conversation.Role) string) []Message {
	var ret []Message
	for _, t := range turns {
		role := roleOf(t.Role)
		if n := len(ret); n > 0 && ret[n-1].Role == role {
			ret[n-1].Content += "\n" + t.Content
			continue
		}
		ret = append(ret, Message{Role: role, Content: t.Content})
	}
	return ret
}

// Message is a provider-neutral chat message after role mapping.
type Message struct {
	Role    string
	Content string
}
