package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/toolloop"
	"github.com/go-go-golems/autocot/pkg/render"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [message...]",
		Short: "Answer a single message, use - to read it from stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMessage,
	}
	cmd.Flags().String("format", "text", "Output format of the final answer (raw, html, text)")
	cmd.Flags().Bool("stream", true, "Stream events while the answer is produced")
	cmd.Flags().Bool("trail", false, "Print the round trail to stderr")
	cmd.Flags().String("load", "", "Continue a conversation saved with /save or --save-dir")
	return cmd
}

func readMessage(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "could not read stdin")
		}
		return string(b), nil
	}
	return strings.Join(args, " "), nil
}

func loadConversation(path string) (*conversation.State, error) {
	if path == "" {
		return conversation.NewState(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open conversation")
	}
	defer func() {
		_ = f.Close()
	}()
	return conversation.LoadState(f)
}

func runMessage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := LoadSettings(cmd)
	if err != nil {
		return err
	}
	message, err := readMessage(args)
	if err != nil {
		return err
	}
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	stream, _ := cmd.Flags().GetBool("stream")
	trail, _ := cmd.Flags().GetBool("trail")
	loadPath, _ := cmd.Flags().GetString("load")

	state, err := loadConversation(loadPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	var answer *toolloop.FinalAnswer
	if stream {
		answer, err = runWithRouter(cmd, s, state, message, out)
	} else {
		var l *toolloop.Loop
		l, err = NewLoop(cmd, s, nil)
		if err != nil {
			return err
		}
		answer, err = l.ProcessConversation(ctx, state, message)
	}
	if answer == nil {
		var le *toolloop.LoopError
		if errors.As(err, &le) && trail {
			fmt.Fprint(cmd.ErrOrStderr(), toolloop.FormatTrail(le.Trail))
		}
		return err
	}
	if trail {
		fmt.Fprint(cmd.ErrOrStderr(), answer.Trail())
	}

	if !stream || format != render.FormatRaw {
		rendered, err := render.Render(answer.Answer, format)
		if err != nil {
			return err
		}
		if stream {
			fmt.Fprintln(out, "\n---")
		}
		fmt.Fprintln(out, rendered)
	}
	if answer.RoundLimited {
		log.Warn().Msg("answer was cut off by the round limit")
	}
	return nil
}

// runWithRouter publishes events through a watermill router whose handler
// prints them, so printing never runs on the loop goroutine.
func runWithRouter(cmd *cobra.Command, s *settings.Settings, state *conversation.State, message string, out io.Writer) (*toolloop.FinalAnswer, error) {
	router, err := events.NewEventRouter(events.WithLogger(events.NewWatermillLogger(log.Logger)))
	if err != nil {
		return nil, err
	}
	showTools, _ := cmd.Flags().GetBool("show-tools")
	showRounds, _ := cmd.Flags().GetBool("show-rounds")
	router.AddHandler("printer", events.DefaultTopic, events.PrinterFunc(out, events.PrinterOptions{
		ShowToolCalls:   showTools,
		ShowToolResults: showTools,
		ShowRounds:      showRounds,
	}))

	l, err := NewLoop(cmd, s, nil, toolloop.WithEventSinks(router.Sink(events.DefaultTopic)))
	if err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(cmd.Context())
	var answer *toolloop.FinalAnswer
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = router.Close()
		}()
		<-router.Running()
		var err error
		answer, err = l.ProcessConversation(ctx, state, message)
		return err
	})
	return answer, eg.Wait()
}
