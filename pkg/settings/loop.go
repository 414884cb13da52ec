package settings

import "time"

// LoopSettings configure the chain-of-thought round controller.
type LoopSettings struct {
	MaxRounds             int           `yaml:"max_rounds" mapstructure:"max_rounds"`
	RoundTimeout          time.Duration `yaml:"round_timeout" mapstructure:"round_timeout"`
	APIDelay              time.Duration `yaml:"api_delay" mapstructure:"api_delay"`
	StopAtFirstInvocation bool          `yaml:"stop_at_first_invocation" mapstructure:"stop_at_first_invocation"`
	RequireFinalSegment   bool          `yaml:"require_final_segment" mapstructure:"require_final_segment"`

	// StartMarker and EndMarker delimit a tool block in model output.
	StartMarker string `yaml:"start_marker" mapstructure:"start_marker"`
	EndMarker   string `yaml:"end_marker" mapstructure:"end_marker"`
	// Grammar selects how a block payload is split into tool name and arguments: "python" or "json".
	Grammar       string `yaml:"grammar" mapstructure:"grammar"`
	MaxBlockBytes int    `yaml:"max_block_bytes" mapstructure:"max_block_bytes"`
}

func NewLoopSettings() LoopSettings {
	return LoopSettings{
		MaxRounds:    3,
		RoundTimeout: 300 * time.Second,
		StartMarker:  "```tool_code\n",
		EndMarker:    "\n```",
		Grammar:      "python",
	}
}

// ToolSettings configure the tool dispatcher.
type ToolSettings struct {
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxParallel    int           `yaml:"max_parallel" mapstructure:"max_parallel"`
	MaxOutputBytes int           `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`
	AllowedTools   []string      `yaml:"allowed_tools,omitempty" mapstructure:"allowed_tools"`
}

func NewToolSettings() ToolSettings {
	return ToolSettings{
		Timeout:        10 * time.Second,
		MaxOutputBytes: 65536,
	}
}
