package backend

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/pkg/errors"
)

// ScriptedRound is one canned stream.
type ScriptedRound struct {
	Chunks []string `yaml:"chunks"`
	// Fail terminates the stream with this kind after the chunks.
	Fail ErrorKind `yaml:"fail,omitempty"`
	// ChunkDelay is slept before each chunk.
	ChunkDelay time.Duration `yaml:"chunk_delay,omitempty"`
	// Hang blocks after the chunks until the context is done.
	Hang bool `yaml:"hang,omitempty"`
}

// Scripted replays rounds in order. It backs the offline CLI mode and tests.
type Scripted struct {
	mu       sync.Mutex
	rounds   []ScriptedRound
	next     int
	repeat   bool
	requests []Request
}

var ErrScriptExhausted = errors.New("scripted backend has no more rounds")

func NewScripted(rounds ...ScriptedRound) *Scripted {
	return &Scripted{rounds: rounds}
}

// Repeat makes the last round replay forever once the script is exhausted.
func (s *Scripted) Repeat() *Scripted {
	s.repeat = true
	return s
}

func (s *Scripted) Name() string {
	return "scripted"
}

func (s *Scripted) OpenStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	s.mu.Lock()
	recorded := Request{SystemPrompt: req.SystemPrompt, Turns: append([]conversation.Turn(nil), req.Turns...)}
	if req.Settings != nil {
		recorded.Settings = req.Settings.Clone()
	}
	s.requests = append(s.requests, recorded)
	if s.next >= len(s.rounds) && !(s.repeat && len(s.rounds) > 0) {
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	idx := s.next
	if idx >= len(s.rounds) {
		idx = len(s.rounds) - 1
	}
	round := s.rounds[idx]
	s.next++
	s.mu.Unlock()

	return Stream(ctx, s.Name(), func(ctx context.Context, emit func(string) error) error {
		for _, c := range round.Chunks {
			if round.ChunkDelay > 0 {
				select {
				case <-time.After(round.ChunkDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := emit(c); err != nil {
				return err
			}
		}
		if round.Hang {
			<-ctx.Done()
			return ctx.Err()
		}
		if round.Fail != "" {
			return &StreamFailure{Kind: round.Fail, Err: errors.New("scripted failure")}
		}
		return nil
	}), nil
}

// Requests returns the requests the backend was opened with, in order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Opened counts OpenStream calls.
func (s *Scripted) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
