package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/toolloop"
	"github.com/go-go-golems/autocot/pkg/render"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/go-go-golems/autocot/pkg/toolbox"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcnksm/go-input"
)

func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "autocot", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", filepath.Join(t.TempDir(), "missing.yaml"), "")
	AddSettingsFlags(root)
	root.AddCommand(NewRunCommand(), NewToolsCommand(), NewTokensCommand())
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newTestRoot(t)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadSettingsFlagsOverrideDefaults(t *testing.T) {
	root := newTestRoot(t)
	var got *settings.Settings
	root.AddCommand(&cobra.Command{
		Use: "inspect",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			got, err = LoadSettings(cmd)
			return err
		},
	})
	root.SetArgs([]string{"inspect", "--api-type", "scripted", "--max-rounds", "5", "--grammar", "json"})
	require.NoError(t, root.Execute())

	assert.Equal(t, settings.ApiTypeScripted, got.Chat.ApiType)
	assert.Equal(t, 5, got.Loop.MaxRounds)
	assert.Equal(t, "json", got.Loop.Grammar)
	// untouched flags keep the defaults
	assert.Equal(t, "```tool_code\n", got.Loop.StartMarker)
}

func TestRunWithDemoScript(t *testing.T) {
	saveDir := t.TempDir()
	out, err := execute(t, "run", "--api-type", "scripted", "--save-dir", saveDir, "what is 2+2?")
	require.NoError(t, err)
	assert.Contains(t, out, "2 + 2 is 4.")

	files, err := filepath.Glob(filepath.Join(saveDir, "*.yaml"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRunWithScriptFile(t *testing.T) {
	script := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`
- chunks: ["Just ", "**hello**"]
`), 0o644))

	out, err := execute(t, "run", "--api-type", "scripted", "--script", script, "--stream=false", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Just hello\n", out)
}

func TestRunRequiresKeyForProviders(t *testing.T) {
	t.Setenv("AUTOCOT_CHAT_API_KEY", "")
	_, err := execute(t, "run", "--api-type", "openai", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")
}

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "name: calc")
	assert.Contains(t, out, "name: weather")

	out, err = execute(t, "tools", "--prompt", "--api-type", "scripted")
	require.NoError(t, err)
	assert.Contains(t, out, "calc(")
}

func TestTokensCommand(t *testing.T) {
	s := conversation.NewState()
	s.AppendTurn(conversation.NewUserTurn("hello there"))
	s.AppendTurn(conversation.NewAssistantTurn("hi", 0))
	path := filepath.Join(t.TempDir(), "c.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(f))
	require.NoError(t, f.Close())

	out, err := execute(t, "tokens", path)
	require.NoError(t, err)
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "user")
}

func newStepSession(t *testing.T, reply string) (*chatSession, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	reg, err := toolbox.NewRegistry()
	require.NoError(t, err)
	c := &chatSession{
		state:  conversation.NewState(),
		out:    &out,
		format: render.FormatText,
		ui:     &input.UI{Writer: &out, Reader: strings.NewReader(reply)},
		steps:  toolloop.NewStepController(),
	}
	c.loop = toolloop.New(
		toolloop.WithBackend(backend.NewScripted(demoScript...)),
		toolloop.WithRegistry(reg),
		toolloop.WithStepController(c.steps),
		toolloop.WithEventSinks(events.CallbackSink(c.onPause)),
	)
	return c, &out
}

func TestChatStepCommandToggles(t *testing.T) {
	c, out := newStepSession(t, "")

	_, err := c.handle(context.Background(), "/step")
	require.NoError(t, err)
	assert.True(t, c.steps.Enabled(c.state.ID))

	_, err = c.handle(context.Background(), "/step")
	require.NoError(t, err)
	assert.False(t, c.steps.Enabled(c.state.ID))
	assert.Contains(t, out.String(), "step mode on")
	assert.Contains(t, out.String(), "step mode off")
}

func TestChatStepModePausesAndLeaves(t *testing.T) {
	c, out := newStepSession(t, "off\n")
	c.steps.Enable(c.state.ID)

	_, err := c.handle(context.Background(), "what is 2+2?")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "-- paused (after_round, round 0)")
	assert.Contains(t, out.String(), "step mode off")
	assert.Contains(t, out.String(), "2 + 2 is 4.")
	assert.False(t, c.steps.Enabled(c.state.ID))
	assert.Empty(t, c.steps.Pending(c.state.ID))
}
