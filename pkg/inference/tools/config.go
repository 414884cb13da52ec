package tools

import (
	"time"

	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/mb0/glob"
	"github.com/rs/zerolog/log"
)

// Config specifies how invocations are executed.
type Config struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MaxParallel    int           `json:"max_parallel" yaml:"max_parallel"`
	MaxOutputBytes int           `json:"max_output_bytes" yaml:"max_output_bytes"`
	// AllowedTools holds glob patterns; nil allows every registered tool.
	AllowedTools []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
}

func DefaultConfig() Config {
	s := settings.NewToolSettings()
	return ConfigFromSettings(s)
}

func ConfigFromSettings(s settings.ToolSettings) Config {
	return Config{
		Timeout:        s.Timeout,
		MaxParallel:    s.MaxParallel,
		MaxOutputBytes: s.MaxOutputBytes,
		AllowedTools:   s.AllowedTools,
	}
}

func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

func (c Config) WithMaxParallel(n int) Config {
	c.MaxParallel = n
	return c
}

func (c Config) WithMaxOutputBytes(n int) Config {
	c.MaxOutputBytes = n
	return c
}

func (c Config) WithAllowedTools(patterns []string) Config {
	c.AllowedTools = patterns
	return c
}

// IsToolAllowed matches name against the AllowedTools patterns.
func (c Config) IsToolAllowed(name string) bool {
	if c.AllowedTools == nil {
		return true
	}
	for _, pattern := range c.AllowedTools {
		ok, err := glob.Match(pattern, name)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("tools: invalid allowed tool pattern")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
