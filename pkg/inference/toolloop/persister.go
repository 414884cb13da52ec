package toolloop

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/pkg/errors"
)

// StatePersister stores a conversation after each completed call.
type StatePersister interface {
	PersistState(ctx context.Context, s *conversation.State) error
}

// FilePersister writes <Dir>/<conversation id>.yaml.
type FilePersister struct {
	Dir string
}

var _ StatePersister = &FilePersister{}

func (p *FilePersister) Path(id string) string {
	return filepath.Join(p.Dir, id+".yaml")
}

func (p *FilePersister) PersistState(_ context.Context, s *conversation.State) error {
	if s == nil {
		return errors.New("nil conversation")
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return errors.Wrap(err, "could not create conversation directory")
	}
	tmp, err := os.CreateTemp(p.Dir, s.ID+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create conversation file")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := s.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not write conversation file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), p.Path(s.ID)), "could not move conversation file")
}

// Load reads a conversation previously written by PersistState.
func (p *FilePersister) Load(id string) (*conversation.State, error) {
	f, err := os.Open(p.Path(id))
	if err != nil {
		return nil, errors.Wrapf(err, "could not open conversation %s", id)
	}
	defer func() {
		_ = f.Close()
	}()
	return conversation.LoadState(f)
}
