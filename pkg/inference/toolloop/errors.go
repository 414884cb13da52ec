package toolloop

import (
	"fmt"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/pkg/errors"
)

var (
	ErrNoBackend    = errors.New("tool loop backend is nil")
	ErrNoDispatcher = errors.New("tool loop dispatcher is nil")
	ErrEmptyMessage = errors.New("user message is empty")
)

// LoopError is returned when a round fails fatally. Trail holds every round of
// the call, the failed one last.
type LoopError struct {
	Kind  backend.ErrorKind
	Round int
	Trail []conversation.RoundRecord
	Err   error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("round %d failed (%s): %v", e.Round, e.Kind, e.Err)
}

func (e *LoopError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err is a LoopError caused by cancellation.
func IsCanceled(err error) bool {
	var le *LoopError
	return errors.As(err, &le) && le.Kind == backend.ErrorKindCanceled
}
