package conversation

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type stateDocument struct {
	ID     string        `yaml:"id"`
	Turns  []Turn        `yaml:"turns"`
	Rounds []RoundRecord `yaml:"rounds,omitempty"`
}

// Save writes the state as YAML.
func (s *State) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stateDocument{ID: s.ID, Turns: s.turns, Rounds: s.rounds}); err != nil {
		return errors.Wrap(err, "could not encode conversation")
	}
	return enc.Close()
}

// LoadState reads a state written by Save.
func LoadState(r io.Reader) (*State, error) {
	var doc stateDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation")
	}
	s := NewState()
	if doc.ID != "" {
		s.ID = doc.ID
	}
	s.turns = doc.Turns
	s.rounds = doc.Rounds
	return s, nil
}
