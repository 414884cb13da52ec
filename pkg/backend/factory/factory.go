package factory

import (
	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/backend/gemini"
	"github.com/go-go-golems/autocot/pkg/backend/openai"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/pkg/errors"
)

// BackendFactory creates a backend from settings.
type BackendFactory interface {
	CreateBackend(s *settings.Settings) (backend.Backend, error)
	SupportedProviders() []string
}

// StandardBackendFactory knows the providers that ship with autocot. The
// scripted provider replays Script and is meant for tests and demos.
type StandardBackendFactory struct {
	Script []backend.ScriptedRound
}

var _ BackendFactory = (*StandardBackendFactory)(nil)

func NewStandardBackendFactory() *StandardBackendFactory {
	return &StandardBackendFactory{}
}

func (f *StandardBackendFactory) CreateBackend(s *settings.Settings) (backend.Backend, error) {
	if s == nil || s.Chat == nil {
		return nil, errors.New("no chat settings")
	}
	switch s.Chat.ApiType {
	case settings.ApiTypeOpenAI:
		return openai.New(s.Chat, s.Client)
	case settings.ApiTypeGemini:
		return gemini.New(s.Chat, s.Client)
	case settings.ApiTypeScripted:
		return backend.NewScripted(f.Script...), nil
	default:
		return nil, errors.Errorf("unsupported provider %q (supported: %v)", s.Chat.ApiType, f.SupportedProviders())
	}
}

func (f *StandardBackendFactory) SupportedProviders() []string {
	return []string{
		string(settings.ApiTypeGemini),
		string(settings.ApiTypeOpenAI),
		string(settings.ApiTypeScripted),
	}
}
