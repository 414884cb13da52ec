package settings

import (
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type ClientSettings struct {
	Timeout   *time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	UserAgent *string        `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
}

// UnmarshalYAML accepts the timeout either as integer seconds or as a duration string.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Timeout   yaml.Node `yaml:"timeout"`
		UserAgent *string   `yaml:"user_agent"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.UserAgent != nil {
		cs.UserAgent = aux.UserAgent
	}
	if aux.Timeout.Kind == 0 {
		return nil
	}

	var seconds int
	if err := aux.Timeout.Decode(&seconds); err == nil {
		t := time.Duration(seconds) * time.Second
		cs.Timeout = &t
		return nil
	}
	var str string
	if err := aux.Timeout.Decode(&str); err != nil {
		return errors.Wrap(err, "timeout must be seconds or a duration")
	}
	t, err := time.ParseDuration(str)
	if err != nil {
		return errors.Wrapf(err, "invalid timeout %q", str)
	}
	cs.Timeout = &t
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

func NewClientSettings() *ClientSettings {
	defaultTimeout := 300 * time.Second
	return &ClientSettings{
		Timeout: &defaultTimeout,
	}
}
