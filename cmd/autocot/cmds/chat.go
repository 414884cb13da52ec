package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/toolloop"
	"github.com/go-go-golems/autocot/pkg/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const chatHelp = `commands:
  /history          show the conversation
  /clear            start over
  /withdraw         drop the last answer
  /regenerate       answer the last message again
  /save FILE        save the conversation
  /load FILE        load a conversation
  /tokens           estimate the size of the conversation
  /step             toggle step mode (pause between rounds)
  /exit             quit`

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	cmd.Flags().String("load", "", "Conversation file to start from")
	cmd.Flags().String("format", "raw", "Format of the answer printed after each message (raw, html, text)")
	return cmd
}

type chatSession struct {
	loop   *toolloop.Loop
	state  *conversation.State
	out    io.Writer
	format render.Format
	ui     *input.UI
	steps  *toolloop.StepController
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := LoadSettings(cmd)
	if err != nil {
		return err
	}
	loadPath, _ := cmd.Flags().GetString("load")
	state, err := loadConversation(loadPath)
	if err != nil {
		return err
	}
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ui := &input.UI{Writer: out, Reader: os.Stdin}
	session := &chatSession{
		state:  state,
		out:    out,
		format: format,
		ui:     ui,
		steps:  toolloop.NewStepController(),
	}
	l, err := NewLoop(cmd, s, out,
		toolloop.WithStepController(session.steps),
		toolloop.WithPauseTimeout(10*time.Minute),
		toolloop.WithEventSinks(events.CallbackSink(session.onPause)),
	)
	if err != nil {
		return err
	}
	session.loop = l

	fmt.Fprintln(out, "type /help for commands")
	for {
		line, err := ui.Ask(">", &input.Options{
			Required:    true,
			Loop:        true,
			HideOrder:   true,
			HideDefault: true,
		})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) {
				return nil
			}
			return err
		}
		quit, err := session.handle(cmd.Context(), strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit || cmd.Context().Err() != nil {
			return nil
		}
	}
}

func (c *chatSession) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, c.answer(c.loop.ProcessConversation(ctx, c.state, line))
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}
	switch fields[0] {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/history":
		for _, t := range c.state.Turns() {
			label := string(t.Role)
			if t.ToolName != "" {
				label += " " + t.ToolName
			}
			fmt.Fprintf(c.out, "[%s]: %s\n", label, t.Content)
		}
	case "/clear":
		c.state.Clear()
		fmt.Fprintln(c.out, "conversation cleared")
	case "/withdraw":
		rec, err := toolloop.WithdrawLast(c.state)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "withdrew round %d\n", rec.Index)
	case "/regenerate":
		return false, c.answer(c.loop.Regenerate(ctx, c.state))
	case "/save":
		if arg == "" {
			return false, errors.New("usage: /save FILE")
		}
		return false, c.save(arg)
	case "/load":
		if arg == "" {
			return false, errors.New("usage: /load FILE")
		}
		loaded, err := loadConversation(arg)
		if err != nil {
			return false, err
		}
		c.state.Restore(loaded)
		fmt.Fprintf(c.out, "loaded %d turns\n", c.state.Len())
	case "/step":
		if c.steps.Enabled(c.state.ID) {
			c.steps.Disable(c.state.ID)
			fmt.Fprintln(c.out, "step mode off")
		} else {
			c.steps.Enable(c.state.ID)
			fmt.Fprintln(c.out, "step mode on")
		}
	case "/tokens":
		count, err := c.state.EstimateTokens("")
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "~%d tokens\n", count.Total)
	default:
		return false, errors.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func (c *chatSession) answer(answer *toolloop.FinalAnswer, err error) error {
	if err != nil {
		if toolloop.IsCanceled(err) {
			return nil
		}
		return err
	}
	if answer.RoundLimited {
		log.Warn().Msg("answer was cut off by the round limit")
	}
	if c.format == render.FormatRaw {
		return nil
	}
	rendered, err := render.Render(answer.Answer, c.format)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, rendered)
	return nil
}

// onPause asks whether to go on when the loop stops in step mode. It runs on
// the loop's goroutine, which is blocked until the pause is released.
func (c *chatSession) onPause(e events.Event) {
	p, ok := e.(*events.EventDebuggerPause)
	if !ok {
		return
	}
	fmt.Fprintf(c.out, "-- paused (%s, round %d): %s\n", p.Phase, p.Metadata().Round, p.Summary)
	reply, err := c.ui.Ask("enter to continue, off to leave step mode", &input.Options{
		HideOrder:   true,
		HideDefault: true,
	})
	if err == nil && strings.TrimSpace(reply) == "off" {
		c.steps.Disable(c.state.ID)
		fmt.Fprintln(c.out, "step mode off")
		return
	}
	c.steps.Continue(p.PauseID)
}

func (c *chatSession) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create file")
	}
	if err := c.state.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "could not write file")
	}
	fmt.Fprintf(c.out, "saved to %s\n", path)
	return nil
}
