package toolloop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type StepPhase string

const (
	StepPhaseAfterRound StepPhase = "after_round"
	StepPhaseAfterTools StepPhase = "after_tools"
)

// Pause is one stop of a conversation in step mode.
type Pause struct {
	ID             string
	ConversationID string
	Round          int
	Phase          StepPhase
	Summary        string
	// Deadline is when the loop continues on its own.
	Deadline time.Time
	Extra    map[string]any
}

type openPause struct {
	pause Pause
	done  chan struct{}
}

// StepController holds loops between rounds until they are continued. Step
// mode is switched on per conversation, so one controller serves a whole chat
// frontend.
type StepController struct {
	mu      sync.Mutex
	enabled map[string]bool
	pauses  map[string]*openPause
}

func NewStepController() *StepController {
	return &StepController{
		enabled: map[string]bool{},
		pauses:  map[string]*openPause{},
	}
}

func (s *StepController) Enable(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[conversationID] = true
}

// Disable leaves step mode and releases the conversation's open pauses.
func (s *StepController) Disable(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enabled, conversationID)
	for id, p := range s.pauses {
		if p.pause.ConversationID == conversationID {
			close(p.done)
			delete(s.pauses, id)
		}
	}
}

func (s *StepController) Enabled(conversationID string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[conversationID]
}

// Pending returns the open pauses of a conversation.
func (s *StepController) Pending(conversationID string) []Pause {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []Pause
	for _, p := range s.pauses {
		if p.pause.ConversationID == conversationID {
			ret = append(ret, p.pause)
		}
	}
	return ret
}

// Continue releases a pause. It reports false if the pause is not open.
func (s *StepController) Continue(pauseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pauses[pauseID]
	if !ok {
		return false
	}
	close(p.done)
	delete(s.pauses, pauseID)
	return true
}

// begin opens a pause when step mode is on for its conversation.
func (s *StepController) begin(p Pause) (Pause, bool) {
	if s == nil {
		return p, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled[p.ConversationID] {
		return p, false
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pauses[p.ID] = &openPause{pause: p, done: make(chan struct{})}
	return p, true
}

// wait blocks until the pause is continued, its deadline passes or ctx ends.
// A pause continued before wait is called returns immediately.
func (s *StepController) wait(ctx context.Context, pauseID string) error {
	s.mu.Lock()
	p, ok := s.pauses[pauseID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	timer := time.NewTimer(time.Until(p.pause.Deadline))
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		s.Continue(pauseID)
		return nil
	case <-ctx.Done():
		s.Continue(pauseID)
		return ctx.Err()
	}
}
