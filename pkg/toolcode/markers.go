package toolcode

import "github.com/pkg/errors"

// Markers delimit a tool block. Both are opaque byte strings.
type Markers struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func DefaultMarkers() Markers {
	return Markers{
		Start: "```tool_code\n",
		End:   "\n```",
	}
}

func (m Markers) Validate() error {
	if m.Start == "" {
		return errors.New("start marker is empty")
	}
	if m.End == "" {
		return errors.New("end marker is empty")
	}
	return nil
}
