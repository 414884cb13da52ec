package conversation

import (
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

var ErrNothingToWithdraw = errors.New("no assistant turn to withdraw")

// State is the history of one conversation. It is owned by a single loop at a
// time and is not safe for concurrent mutation.
type State struct {
	ID     string
	turns  []Turn
	rounds []RoundRecord
}

func NewState() *State {
	return &State{ID: uuid.NewString()}
}

func (s *State) AppendTurn(t Turn) {
	s.turns = append(s.turns, t)
}

func (s *State) AppendRound(r RoundRecord) {
	s.rounds = append(s.rounds, r)
}

// Turns returns a copy of the history.
func (s *State) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Rounds returns a copy of the recorded rounds.
func (s *State) Rounds() []RoundRecord {
	return append([]RoundRecord(nil), s.rounds...)
}

func (s *State) Len() int {
	return len(s.turns)
}

func (s *State) LastTurn() (Turn, bool) {
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

func (s *State) LastRound() (RoundRecord, bool) {
	if len(s.rounds) == 0 {
		return RoundRecord{}, false
	}
	return s.rounds[len(s.rounds)-1], true
}

// Exchanges counts the user turns in the history.
func (s *State) Exchanges() int {
	n := 0
	for _, t := range s.turns {
		if t.Role == RoleUser && t.Round < 0 {
			n++
		}
	}
	return n
}

// LastUserMessage returns the content of the most recent user turn.
func (s *State) LastUserMessage() (string, bool) {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleUser && s.turns[i].Round < 0 {
			return s.turns[i].Content, true
		}
	}
	return "", false
}

// WithdrawLastAssistant removes the most recent assistant turn, every turn
// appended after it, and the round record of that turn. The removed record is
// returned so the caller can replay that round. When the history was loaded
// without records, the record is rebuilt from the turn's round.
func (s *State) WithdrawLastAssistant() (RoundRecord, error) {
	idx := -1
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return RoundRecord{}, ErrNothingToWithdraw
	}
	withdrawn := s.turns[idx]
	s.turns = s.turns[:idx]

	round := withdrawn.Round
	if round < 0 {
		round = 0
	}
	rec := RoundRecord{Exchange: s.Exchanges(), Index: round}
	if n := len(s.rounds); n > 0 {
		last := s.rounds[n-1]
		if last.Index == round && last.Exchange == rec.Exchange {
			rec = last
			s.rounds = s.rounds[:n-1]
		}
	}
	return rec, nil
}

// Clear drops all turns and rounds but keeps the ID.
func (s *State) Clear() {
	s.turns = nil
	s.rounds = nil
}

// Load replaces the history with turns and drops round records.
func (s *State) Load(turns []Turn) {
	s.turns = append([]Turn(nil), turns...)
	s.rounds = nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		ID:     s.ID,
		turns:  clone.Clone(s.turns).([]Turn),
		rounds: clone.Clone(s.rounds).([]RoundRecord),
	}
}

// Restore replaces s with the content of other.
func (s *State) Restore(other *State) {
	c := other.Clone()
	s.ID = c.ID
	s.turns = c.turns
	s.rounds = c.rounds
}
