package settings

import (
	"strings"

	"github.com/huandu/go-clone"
)

// ChatSettings are the generation parameters handed to a backend for every round.
// The loop never interprets them.
type ChatSettings struct {
	ApiType           ApiType  `yaml:"api_type,omitempty" mapstructure:"api_type"`
	Model             string   `yaml:"model,omitempty" mapstructure:"model"`
	APIKey            string   `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string   `yaml:"base_url,omitempty" mapstructure:"base_url"`
	MaxResponseTokens *int     `yaml:"max_response_tokens,omitempty" mapstructure:"max_response_tokens"`
	Temperature       *float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP              *float64 `yaml:"top_p,omitempty" mapstructure:"top_p"`
	TopK              *int     `yaml:"top_k,omitempty" mapstructure:"top_k"`
	PresencePenalty   *float64 `yaml:"presence_penalty,omitempty" mapstructure:"presence_penalty"`
	Stop              []string `yaml:"stop,omitempty" mapstructure:"stop"`

	// Extra is passed through to providers that understand it (search or context toggles).
	Extra map[string]interface{} `yaml:"extra,omitempty" mapstructure:"extra"`
}

func NewChatSettings() *ChatSettings {
	maxTokens := 8192
	temperature := 1.0
	topP := 0.95
	topK := 40
	presencePenalty := 0.0
	return &ChatSettings{
		ApiType:           ApiTypeGemini,
		Model:             "gemini-2.5-flash",
		BaseURL:           "",
		MaxResponseTokens: &maxTokens,
		Temperature:       &temperature,
		TopP:              &topP,
		TopK:              &topK,
		PresencePenalty:   &presencePenalty,
		Stop:              []string{},
		Extra:             map[string]interface{}{},
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// IsThinkingModel reports whether the model streams <thought> sections that must be hidden.
func (s *ChatSettings) IsThinkingModel() bool {
	return strings.Contains(strings.ToLower(s.Model), "thinking")
}
