package toolloop

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/toolcode"
	"github.com/rs/zerolog/log"
)

type attempt struct {
	scanEvents  []toolcode.ScanEvent
	plain       strings.Builder
	invocations []toolcode.Invocation
	warnings    []toolcode.Warning
}

// runRound streams one round, retrying once on a transient failure. The
// returned record is not yet appended to the state.
func (c *call) runRound(ctx context.Context, idx int) (conversation.RoundRecord, *backend.StreamFailure) {
	req := &backend.Request{
		SystemPrompt: c.l.systemPrompt,
		Turns:        c.state.Turns(),
		Settings:     c.l.chat,
	}
	rec := conversation.RoundRecord{Exchange: c.exchange, Index: idx, Started: time.Now()}

	for n := 1; ; n++ {
		rec.Attempts = n
		a, failure := c.streamAttempt(ctx, req, idx, n)
		if failure == nil {
			rec.Text = toolcode.Reconstruct(a.scanEvents)
			rec.PlainText = a.plain.String()
			rec.Invocations = a.invocations
			rec.Warnings = a.warnings
			return rec, nil
		}
		if ctx.Err() != nil {
			return rec, failure
		}
		if n == 1 && failure.Kind.Transient() {
			log.Info().Str("conversation", c.state.ID).Int("round", idx).Str("kind", string(failure.Kind)).Msg("retrying round")
			c.publish(events.NewInfoEvent(c.meta(idx, n), "retrying", map[string]interface{}{
				"kind":  string(failure.Kind),
				"error": failure.Error(),
			}))
			continue
		}
		return rec, failure
	}
}

func (c *call) streamAttempt(ctx context.Context, req *backend.Request, idx, n int) (*attempt, *backend.StreamFailure) {
	var actx context.Context
	var cancel context.CancelFunc
	if c.l.loopCfg.RoundTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.l.loopCfg.RoundTimeout)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	meta := c.meta(idx, n)
	c.update(func(ls *LoopState) { ls.AccumulatedAnswer = "" })
	c.publish(events.NewRoundStartEvent(meta, c.l.maxRounds()))

	scanner, err := toolcode.NewScanner(c.l.loopCfg.ScannerOptions...)
	if err != nil {
		return nil, &backend.StreamFailure{Kind: backend.ErrorKindMalformed, Err: err}
	}

	ch, err := c.l.backend.OpenStream(actx, req)
	if err != nil {
		return nil, c.failure(ctx, err)
	}

	a := &attempt{}
	stopped := false
	handle := func(evs []toolcode.ScanEvent) {
		for _, ev := range evs {
			if stopped {
				// everything after the first invocation is discarded
				return
			}
			a.scanEvents = append(a.scanEvents, ev)
			switch ev.Kind {
			case toolcode.EventPlainText:
				if ev.Text == "" {
					continue
				}
				a.plain.WriteString(ev.Text)
				completion := a.plain.String()
				c.update(func(ls *LoopState) { ls.AccumulatedAnswer = completion })
				c.publish(events.NewPartialEvent(meta, ev.Text, completion))
			case toolcode.EventToolInvocation:
				inv := *ev.Invocation
				c.publish(events.NewToolCodeStartEvent(meta, events.ToolCall{
					Index: len(a.invocations),
					Name:  inv.Name,
					Args:  inv.RawArgs,
					Raw:   inv.Raw,
				}))
				a.invocations = append(a.invocations, inv)
				if c.l.loopCfg.StopAtFirstInvocation && !stopped {
					stopped = true
					cancel()
				}
			}
		}
		for _, w := range scanner.Warnings()[len(a.warnings):] {
			a.warnings = append(a.warnings, w)
			c.publish(events.NewWarningEvent(meta, w.Message, w.Offset))
		}
	}

	var failure *backend.StreamFailure
	// the channel is drained until it closes so the producer goroutine exits
	for ev := range ch {
		switch ev.Kind {
		case backend.EventTextDelta:
			if !stopped {
				handle(scanner.Feed(ev.Text))
			}
		case backend.EventStreamError:
			failure = ev.Error
		case backend.EventStreamEnd:
		}
	}

	if ctx.Err() != nil {
		return a, c.failure(ctx, ctx.Err())
	}
	if stopped {
		return a, nil
	}
	if failure != nil {
		if failure.Kind == backend.ErrorKindCanceled && actx.Err() == context.DeadlineExceeded {
			failure = &backend.StreamFailure{Kind: backend.ErrorKindTimeout, Err: failure.Err}
		}
		return a, failure
	}
	handle(scanner.Finish())
	return a, nil
}

// failure classifies err, reporting a canceled parent context as cancellation.
func (c *call) failure(ctx context.Context, err error) *backend.StreamFailure {
	if ctx.Err() == context.Canceled {
		return &backend.StreamFailure{Kind: backend.ErrorKindCanceled, Err: ctx.Err()}
	}
	return backend.Failure(err)
}
