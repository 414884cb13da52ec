package toolloop

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/tools"
	"github.com/go-go-golems/autocot/pkg/prompt"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/go-go-golems/autocot/pkg/toolcode"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Loop runs chain-of-thought rounds against a backend until the model stops
// calling tools. A Loop holds no per-call state and can serve many
// conversations concurrently.
type Loop struct {
	backend      backend.Backend
	dispatcher   *tools.Dispatcher
	loopCfg      LoopConfig
	chat         *settings.ChatSettings
	systemPrompt string
	sinks        []events.EventSink
	feedback     prompt.FeedbackFormatter

	stepCtrl     *StepController
	pauseTimeout time.Duration

	snapshotHook SnapshotHook
	persister    StatePersister
	observer     func(LoopState)

	err error
}

// LoopState is the progress of one ProcessConversation call.
type LoopState struct {
	RoundIndex int
	MaxRounds  int
	// AccumulatedAnswer is the plain text of the current round so far.
	AccumulatedAnswer string
	// Pending is true while tool calls are being dispatched.
	Pending bool
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg:      DefaultLoopConfig(),
		chat:         settings.NewChatSettings(),
		feedback:     prompt.DefaultFeedback,
		pauseTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func WithBackend(b backend.Backend) Option {
	return func(l *Loop) { l.backend = b }
}

// WithRegistry dispatches with a default-configured dispatcher over reg.
func WithRegistry(reg *tools.Registry, opts ...tools.DispatcherOption) Option {
	return func(l *Loop) { l.dispatcher = tools.NewDispatcher(reg, opts...) }
}

func WithDispatcher(d *tools.Dispatcher) Option {
	return func(l *Loop) { l.dispatcher = d }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

// WithLoopSettings resolves s into a LoopConfig. Errors are reported by ProcessConversation.
func WithLoopSettings(s settings.LoopSettings) Option {
	return func(l *Loop) {
		cfg, err := LoopConfigFromSettings(s)
		if err != nil {
			l.err = errors.Wrap(err, "invalid loop settings")
			return
		}
		l.loopCfg = cfg
	}
}

func WithScannerOptions(opts ...toolcode.Option) Option {
	return func(l *Loop) { l.loopCfg = l.loopCfg.WithScannerOptions(opts...) }
}

func WithChatSettings(chat *settings.ChatSettings) Option {
	return func(l *Loop) { l.chat = chat }
}

func WithSystemPrompt(p string) Option {
	return func(l *Loop) { l.systemPrompt = p }
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

func WithFeedbackFormatter(f prompt.FeedbackFormatter) Option {
	return func(l *Loop) { l.feedback = f }
}

func WithStepController(sc *StepController) Option {
	return func(l *Loop) { l.stepCtrl = sc }
}

func WithPauseTimeout(d time.Duration) Option {
	return func(l *Loop) { l.pauseTimeout = d }
}

func WithSnapshotHook(h SnapshotHook) Option {
	return func(l *Loop) { l.snapshotHook = h }
}

func WithPersister(p StatePersister) Option {
	return func(l *Loop) { l.persister = p }
}

// WithStateObserver is called with a copy of the LoopState whenever it changes.
func WithStateObserver(f func(LoopState)) Option {
	return func(l *Loop) { l.observer = f }
}

func (l *Loop) maxRounds() int {
	if l.loopCfg.MaxRounds <= 0 {
		return DefaultLoopConfig().MaxRounds
	}
	return l.loopCfg.MaxRounds
}

func (l *Loop) model() string {
	if l.chat == nil {
		return ""
	}
	return l.chat.Model
}

func (l *Loop) validate() error {
	if l == nil {
		return errors.New("tool loop is nil")
	}
	if l.err != nil {
		return l.err
	}
	if l.backend == nil {
		return ErrNoBackend
	}
	if l.dispatcher == nil {
		return ErrNoDispatcher
	}
	if _, err := toolcode.NewScanner(l.loopCfg.ScannerOptions...); err != nil {
		return errors.Wrap(err, "invalid scanner options")
	}
	return nil
}

// ProcessConversation appends userMessage to s and runs rounds until a round
// produces no tool invocation or the round limit is reached.
func (l *Loop) ProcessConversation(ctx context.Context, s *conversation.State, userMessage string) (*FinalAnswer, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("conversation state is nil")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}
	s.AppendTurn(conversation.NewUserTurn(userMessage))
	return l.run(ctx, s, s.Exchanges(), 0)
}

// WithdrawLast removes the last assistant round of s and everything after it.
func WithdrawLast(s *conversation.State) (conversation.RoundRecord, error) {
	if s == nil {
		return conversation.RoundRecord{}, errors.New("conversation state is nil")
	}
	return s.WithdrawLastAssistant()
}

// Regenerate withdraws the last assistant round and replays it with the same
// history, without adding a user turn.
func (l *Loop) Regenerate(ctx context.Context, s *conversation.State) (*FinalAnswer, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	rec, err := WithdrawLast(s)
	if err != nil {
		return nil, err
	}
	exchange := rec.Exchange
	if exchange == 0 {
		exchange = s.Exchanges()
	}
	log.Debug().Str("conversation", s.ID).Int("exchange", exchange).Int("round", rec.Index).Msg("regenerating round")
	return l.run(ctx, s, exchange, rec.Index)
}

// call is the per-invocation state of run.
type call struct {
	l        *Loop
	state    *conversation.State
	sinks    []events.EventSink
	exchange int

	mu sync.Mutex
	ls LoopState
}

func (c *call) publish(e events.Event) {
	events.Publish(e, c.sinks...)
}

func (c *call) meta(round, attempt int) events.EventMetadata {
	return events.NewEventMetadata(c.state.ID, round, attempt, c.l.model())
}

func (c *call) update(f func(*LoopState)) {
	c.mu.Lock()
	f(&c.ls)
	snapshot := c.ls
	c.mu.Unlock()
	if c.l.observer != nil {
		c.l.observer(snapshot)
	}
}

func (l *Loop) snapshot(ctx context.Context, s *conversation.State, phase string) {
	if l.snapshotHook != nil {
		l.snapshotHook(ctx, s, phase)
		return
	}
	if h, ok := SnapshotHookFromContext(ctx); ok {
		h(ctx, s, phase)
	}
}

func (l *Loop) run(ctx context.Context, s *conversation.State, exchange int, startRound int) (*FinalAnswer, error) {
	c := &call{
		l:        l,
		state:    s,
		sinks:    append(append([]events.EventSink(nil), l.sinks...), events.GetEventSinks(ctx)...),
		exchange: exchange,
	}
	maxRounds := l.maxRounds()
	c.update(func(ls *LoopState) {
		ls.MaxRounds = maxRounds
		ls.RoundIndex = startRound
	})

	// rounds of this exchange that precede startRound, kept when regenerating
	var rounds []conversation.RoundRecord
	for _, r := range s.Rounds() {
		if r.Exchange == exchange && r.Index < startRound {
			rounds = append(rounds, r)
		}
	}
	var trail []conversation.RoundRecord

	defer l.persist(ctx, s)

	for idx := startRound; ; idx++ {
		if idx > startRound && l.loopCfg.APIDelay > 0 {
			if err := sleep(ctx, l.loopCfg.APIDelay); err != nil {
				rec := conversation.RoundRecord{Exchange: exchange, Index: idx, Started: time.Now(), Annotation: conversation.AnnotationCanceled, Error: err.Error()}
				return nil, c.fail(idx, 0, append(trail, rec), backend.ErrorKindCanceled, err)
			}
		}
		c.update(func(ls *LoopState) {
			ls.RoundIndex = idx
			ls.AccumulatedAnswer = ""
			ls.Pending = false
		})
		l.snapshot(ctx, s, PhasePreRound)

		rec, failure := c.runRound(ctx, idx)
		if failure != nil {
			if failure.Kind == backend.ErrorKindCanceled {
				rec.Annotation = conversation.AnnotationCanceled
			} else {
				rec.Annotation = conversation.AnnotationFailed
			}
			rec.Error = failure.Error()
			rec.Duration = time.Since(rec.Started)
			return nil, c.fail(idx, rec.Attempts, append(trail, rec), failure.Kind, failure)
		}
		lastAllowed := idx >= maxRounds-1

		if len(rec.Invocations) == 0 {
			if l.loopCfg.RequireFinalSegment && !lastAllowed && !prompt.HasFinalAnswer(rec.Text) {
				rec.Annotation = conversation.AnnotationMissingAnswer
				rec.Duration = time.Since(rec.Started)
				s.AppendTurn(conversation.NewAssistantTurn(rec.Text, idx))
				s.AppendTurn(conversation.NewAlertTurn(prompt.MissingFinalAnswerAlert, idx))
				s.AppendRound(rec)
				rounds = append(rounds, rec)
				trail = append(trail, rec)
				c.publish(events.NewInfoEvent(c.meta(idx, rec.Attempts), "missing final answer", nil))
				l.snapshot(ctx, s, PhasePostRound)
				continue
			}

			rec.Terminal = true
			rec.Duration = time.Since(rec.Started)
			s.AppendTurn(conversation.NewAssistantTurn(rec.Text, idx))
			s.AppendRound(rec)
			rounds = append(rounds, rec)
			l.snapshot(ctx, s, PhasePostRound)

			answer := newFinalAnswer(rec.PlainText, false, rounds)
			c.publish(events.NewFinalEvent(c.meta(idx, rec.Attempts), answer.Text, answer.Answer, false))
			log.Debug().Str("conversation", s.ID).Int("round", idx).Msg("loop finished")
			return answer, nil
		}

		l.snapshot(ctx, s, PhasePostRound)
		l.maybePause(ctx, s, idx, StepPhaseAfterRound, "Review pending tool calls", map[string]any{
			"pending_tools": len(rec.Invocations),
		})

		c.update(func(ls *LoopState) { ls.Pending = true })
		results, err := c.dispatch(ctx, rec.Invocations)
		c.update(func(ls *LoopState) { ls.Pending = false })
		if err != nil {
			rec.Annotation = conversation.AnnotationCanceled
			rec.Error = err.Error()
			rec.Duration = time.Since(rec.Started)
			return nil, c.fail(idx, rec.Attempts, append(trail, rec), backend.ErrorKindCanceled, err)
		}
		rec.Results = results
		for _, r := range results {
			c.publish(events.NewToolCodeResultEvent(c.meta(idx, rec.Attempts), events.ToolResult{
				Index:      r.Index,
				Name:       r.Invocation.Name,
				Status:     string(r.Status),
				ErrorType:  r.ErrorType,
				Value:      r.Value,
				DurationMs: r.Duration.Milliseconds(),
			}))
		}

		// the notice goes out with the feedback the model reads before its last round
		notice := idx+1 == maxRounds-1
		s.AppendTurn(conversation.NewAssistantTurn(rec.Text, idx))
		for _, r := range results {
			s.AppendTurn(conversation.NewToolTurn(r.Invocation.Name, string(r.Status), l.feedback.Format(r, notice), idx))
		}

		if lastAllowed {
			rec.Terminal = true
			rec.Annotation = conversation.AnnotationRoundLimit
			rec.Duration = time.Since(rec.Started)
			s.AppendRound(rec)
			rounds = append(rounds, rec)
			l.snapshot(ctx, s, PhasePostTools)

			log.Warn().Str("conversation", s.ID).Int("max_rounds", maxRounds).Msg("round limit reached")
			answer := newFinalAnswer(bestText(rounds), true, rounds)
			c.publish(events.NewInfoEvent(c.meta(idx, rec.Attempts), "round limit reached", map[string]interface{}{"max_rounds": maxRounds}))
			c.publish(events.NewFinalEvent(c.meta(idx, rec.Attempts), answer.Text, answer.Answer, true))
			return answer, nil
		}

		rec.Duration = time.Since(rec.Started)
		s.AppendRound(rec)
		rounds = append(rounds, rec)
		trail = append(trail, rec)
		l.snapshot(ctx, s, PhasePostTools)
		l.maybePause(ctx, s, idx, StepPhaseAfterTools, "Review tool results", nil)
	}
}

func (c *call) fail(round, attempt int, trail []conversation.RoundRecord, kind backend.ErrorKind, err error) error {
	meta := c.meta(round, attempt)
	if kind == backend.ErrorKindCanceled {
		c.publish(events.NewInterruptEvent(meta, c.currentText()))
	} else {
		c.publish(events.NewErrorEvent(meta, string(kind), err))
	}
	log.Warn().Err(err).Str("conversation", c.state.ID).Int("round", round).Str("kind", string(kind)).Msg("loop failed")
	return &LoopError{Kind: kind, Round: round, Trail: trail, Err: err}
}

func (c *call) currentText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ls.AccumulatedAnswer
}

// dispatch runs the invocations detached from ctx so tool bodies are bounded
// only by the dispatcher timeout. On cancellation the results are dropped.
func (c *call) dispatch(ctx context.Context, invocations []toolcode.Invocation) ([]tools.ToolResult, error) {
	done := make(chan []tools.ToolResult, 1)
	go func() {
		done <- c.l.dispatcher.DispatchAll(context.WithoutCancel(ctx), invocations)
	}()
	select {
	case results := <-done:
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loop) persist(ctx context.Context, s *conversation.State) {
	if l.persister == nil {
		return
	}
	if err := l.persister.PersistState(context.WithoutCancel(ctx), s); err != nil {
		log.Error().Err(err).Str("conversation", s.ID).Msg("could not persist conversation")
	}
}

func (l *Loop) maybePause(ctx context.Context, s *conversation.State, round int, phase StepPhase, summary string, extra map[string]any) {
	p, ok := l.stepCtrl.begin(Pause{
		ConversationID: s.ID,
		Round:          round,
		Phase:          phase,
		Summary:        summary,
		Deadline:       time.Now().Add(l.pauseTimeout),
		Extra:          extra,
	})
	if !ok {
		return
	}

	evMeta := events.NewEventMetadata(s.ID, round, 0, l.model())
	events.Publish(
		events.NewDebuggerPauseEvent(evMeta, p.ID, string(p.Phase), p.Summary, p.Deadline.UnixMilli(), p.Extra),
		append(append([]events.EventSink(nil), l.sinks...), events.GetEventSinks(ctx)...)...,
	)

	_ = l.stepCtrl.wait(ctx, p.ID)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
