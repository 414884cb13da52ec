package cmds

import (
	"io"
	"os"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/backend/factory"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/toolloop"
	"github.com/go-go-golems/autocot/pkg/inference/tools"
	"github.com/go-go-golems/autocot/pkg/prompt"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/go-go-golems/autocot/pkg/toolbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// flag name -> settings key
var settingsFlags = map[string]string{
	"api-type":                 "chat.api_type",
	"model":                    "chat.model",
	"api-key":                  "chat.api_key",
	"base-url":                 "chat.base_url",
	"max-rounds":               "loop.max_rounds",
	"round-timeout":            "loop.round_timeout",
	"api-delay":                "loop.api_delay",
	"require-final-segment":    "loop.require_final_segment",
	"stop-at-first-invocation": "loop.stop_at_first_invocation",
	"grammar":                  "loop.grammar",
	"tool-timeout":             "tools.timeout",
}

// AddSettingsFlags registers the flags that override config file values.
func AddSettingsFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.String("api-type", "", "Backend provider (gemini, openai, scripted)")
	fs.String("model", "", "Model name")
	fs.String("api-key", "", "API key (or AUTOCOT_CHAT_API_KEY)")
	fs.String("base-url", "", "Provider base URL")
	fs.Int("max-rounds", 0, "Maximum rounds per message")
	fs.Duration("round-timeout", 0, "Timeout of one streamed round")
	fs.Duration("api-delay", 0, "Delay between rounds")
	fs.Bool("require-final-segment", false, "Ask again when the answer lacks the final answer segment")
	fs.Bool("stop-at-first-invocation", false, "Stop reading a round after its first tool call")
	fs.String("grammar", "", "Tool call grammar (python, json)")
	fs.Duration("tool-timeout", 0, "Timeout of one tool call")

	fs.String("script", "", "YAML file of scripted rounds for --api-type scripted")
	fs.String("character", "You are a helpful assistant.", "Character description used in the system prompt")
	fs.String("save-dir", "", "Directory conversations are saved to after every message")
	fs.Bool("show-tools", true, "Print tool calls and results")
	fs.Bool("show-rounds", false, "Print a header for every round")
}

// LoadSettings merges defaults, the config file, AUTOCOT_ environment
// variables and the flags that were set on the command line.
func LoadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	configFile, _ := cmd.Flags().GetString("config")
	v, err := settings.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	for flag, key := range settingsFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, errors.Wrapf(err, "could not bind --%s", flag)
		}
	}
	s, err := settings.Load(v)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("config", v.ConfigFileUsed()).Str("api_type", string(s.Chat.ApiType)).Str("model", s.Chat.Model).Msg("loaded settings")
	return s, nil
}

// demoScript is replayed by the scripted backend when no --script is given.
var demoScript = []backend.ScriptedRound{
	{Chunks: []string{
		prompt.Header(prompt.SegmentThink), "\nI need to compute this.\n",
		prompt.Header(prompt.SegmentCallToolCode), "\n```tool_code\n", "print(default_api.calc(expression=\"2 + 2\"))", "\n```",
	}},
	{Chunks: []string{
		prompt.Header(prompt.SegmentFinalAnswer), "\n<p>2 + 2 is <strong>4</strong>.</p>",
	}},
}

func loadScript(path string) ([]backend.ScriptedRound, error) {
	if path == "" {
		return demoScript, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open script")
	}
	defer func() {
		_ = f.Close()
	}()
	var rounds []backend.ScriptedRound
	if err := yaml.NewDecoder(f).Decode(&rounds); err != nil {
		return nil, errors.Wrap(err, "could not decode script")
	}
	return rounds, nil
}

func promptOptions(s *settings.Settings) prompt.Options {
	opts := prompt.DefaultOptions()
	opts.Start = s.Loop.StartMarker
	opts.End = s.Loop.EndMarker
	if s.Loop.Grammar == "json" {
		opts.Namespace = ""
	}
	return opts
}

// SystemPrompt renders the system prompt for the registry.
func SystemPrompt(s *settings.Settings, character string, reg *tools.Registry) (string, error) {
	return prompt.CotSystemPrompt(character, prompt.ToolInfosFromRegistry(reg), prompt.CleanHTMLRules, promptOptions(s))
}

// NewLoop builds a loop over the demo tools, printing events to w.
func NewLoop(cmd *cobra.Command, s *settings.Settings, w io.Writer, extra ...toolloop.Option) (*toolloop.Loop, error) {
	reg, err := toolbox.NewRegistry()
	if err != nil {
		return nil, err
	}

	scriptPath, _ := cmd.Flags().GetString("script")
	script, err := loadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	b, err := (&factory.StandardBackendFactory{Script: script}).CreateBackend(s)
	if err != nil {
		return nil, err
	}
	b = backend.NewBackendWithMiddleware(b, backend.NewLoggingMiddleware(log.Logger))

	character, _ := cmd.Flags().GetString("character")
	systemPrompt, err := SystemPrompt(s, character, reg)
	if err != nil {
		return nil, err
	}

	showTools, _ := cmd.Flags().GetBool("show-tools")
	showRounds, _ := cmd.Flags().GetBool("show-rounds")

	opts := []toolloop.Option{
		toolloop.WithBackend(b),
		toolloop.WithDispatcher(tools.NewDispatcher(reg, tools.WithConfig(tools.ConfigFromSettings(s.Tools)))),
		toolloop.WithLoopSettings(s.Loop),
		toolloop.WithChatSettings(s.Chat),
		toolloop.WithSystemPrompt(systemPrompt),
	}
	if w != nil {
		opts = append(opts, toolloop.WithEventSinks(events.PrinterSink(w, events.PrinterOptions{
			ShowToolCalls:   showTools,
			ShowToolResults: showTools,
			ShowRounds:      showRounds,
		})))
	}
	if dir, _ := cmd.Flags().GetString("save-dir"); dir != "" {
		opts = append(opts, toolloop.WithPersister(&toolloop.FilePersister{Dir: dir}))
	}
	return toolloop.New(append(opts, extra...)...), nil
}
