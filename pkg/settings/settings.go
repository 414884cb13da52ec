package settings

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "AUTOCOT"

//go:embed "defaults.yaml"
var defaultsYAML []byte

type Settings struct {
	Chat   *ChatSettings   `yaml:"chat" mapstructure:"chat"`
	Client *ClientSettings `yaml:"client" mapstructure:"client"`
	Loop   LoopSettings    `yaml:"loop" mapstructure:"loop"`
	Tools  ToolSettings    `yaml:"tools" mapstructure:"tools"`
}

func NewSettings() *Settings {
	return &Settings{
		Chat:   NewChatSettings(),
		Client: NewClientSettings(),
		Loop:   NewLoopSettings(),
		Tools:  NewToolSettings(),
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Validate() error {
	if s.Chat == nil {
		return errors.New("missing chat settings")
	}
	if !s.Chat.ApiType.Valid() {
		return errors.Errorf("unknown api type %q", s.Chat.ApiType)
	}
	if s.Chat.ApiType != ApiTypeScripted && s.Chat.APIKey == "" {
		return errors.Errorf("no api key configured for %s (set %s_CHAT_API_KEY)", s.Chat.ApiType, EnvPrefix)
	}
	if s.Loop.MaxRounds < 1 {
		return errors.Errorf("max_rounds must be at least 1, got %d", s.Loop.MaxRounds)
	}
	if s.Loop.StartMarker == "" || s.Loop.EndMarker == "" {
		return errors.New("tool block markers must not be empty")
	}
	switch s.Loop.Grammar {
	case "python", "json":
	default:
		return errors.Errorf("unknown tool call grammar %q", s.Loop.Grammar)
	}
	return nil
}

// NewViper returns a viper instance seeded with the embedded defaults, the
// AUTOCOT_ environment and the user config file if one exists.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, errors.Wrap(err, "could not read default settings")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		configFile = DefaultConfigFile()
	}
	if configFile != "" {
		f, err := os.Open(configFile)
		switch {
		case err == nil:
			defer func() { _ = f.Close() }()
			if err := v.MergeConfig(f); err != nil {
				return nil, errors.Wrapf(err, "could not parse config file %s", configFile)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "could not open config file %s", configFile)
		}
	}

	return v, nil
}

// DefaultConfigFile is $XDG_CONFIG_HOME/autocot/config.yaml.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autocot", "config.yaml")
}

// Load decodes settings out of v. Unset values keep their defaults.
func Load(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if s.Chat.Extra == nil {
		s.Chat.Extra = map[string]interface{}{}
	}
	return s, nil
}
