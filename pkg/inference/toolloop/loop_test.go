package toolloop

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/events"
	"github.com/go-go-golems/autocot/pkg/inference/tools"
	"github.com/go-go-golems/autocot/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

type cityInput struct {
	City string `json:"city"`
}

func testRegistry(t *testing.T, extra ...func(b *tools.RegistryBuilder)) *tools.Registry {
	t.Helper()
	b := tools.NewRegistryBuilder().
		RegisterFunc("calc", "Adds two numbers", func(in addInput) (int, error) {
			return in.A + in.B, nil
		}).
		RegisterFunc("weather", "Current weather of a city", func(in cityInput) (string, error) {
			return "18°C, sunny", nil
		})
	for _, f := range extra {
		f(b)
	}
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func block(call string) string {
	return "```tool_code\n" + call + "\n```"
}

func text(chunks ...string) backend.ScriptedRound {
	return backend.ScriptedRound{Chunks: chunks}
}

func newTestLoop(t *testing.T, b backend.Backend, cfg LoopConfig, opts ...Option) *Loop {
	t.Helper()
	return New(append([]Option{
		WithBackend(b),
		WithRegistry(testRegistry(t)),
		WithLoopConfig(cfg),
	}, opts...)...)
}

func TestExampleScenario(t *testing.T) {
	round0 := "I'll compute and look it up.\n" + block("calc(a=2, b=2)") + "\n" + block(`weather(city="Paris")`) + "\n"
	sb := backend.NewScripted(
		// chunk boundaries split the markers
		text(round0[:20], round0[20:33], round0[33:61], round0[61:]),
		text("2+2 is 4, and Paris ", "is 18°C and sunny."),
	)
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(sink))

	s := conversation.NewState()
	answer, err := l.ProcessConversation(context.Background(), s, "What's 2+2 and what's the weather in Paris?")
	require.NoError(t, err)

	assert.Equal(t, "2+2 is 4, and Paris is 18°C and sunny.", answer.Text)
	assert.Equal(t, answer.Text, answer.Answer)
	assert.False(t, answer.RoundLimited)
	require.Len(t, answer.Rounds, 2)
	assert.Len(t, answer.Rounds[0].Invocations, 2)
	assert.True(t, answer.Rounds[1].Terminal)
	assert.Equal(t, 2, sb.Opened())

	// the second request carries the round text and both results in invocation order
	reqs := sb.Requests()
	turns := reqs[1].Turns
	require.Len(t, turns, 4)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)
	assert.Equal(t, round0, turns[1].Content)
	assert.Equal(t, "calc", turns[2].ToolName)
	assert.Contains(t, turns[2].Content, "Tool Result:\n4")
	assert.Equal(t, "weather", turns[3].ToolName)
	assert.Contains(t, turns[3].Content, "18°C, sunny")
	assert.NotContains(t, turns[3].Content, prompt.MaxIterationNotice)

	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 1, s.Exchanges())
	assert.Len(t, s.Rounds(), 2)
	assert.Contains(t, answer.Trail(), "round 0: 2 invocation(s)")
}

func TestEventsArePublishedInOrder(t *testing.T) {
	sb := backend.NewScripted(
		text("a ", block("calc(a=1, b=1)"), " b ", block(`weather(city="x")`)),
		text("done"),
	)
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(sink))

	_, err := l.ProcessConversation(context.Background(), conversation.NewState(), "go")
	require.NoError(t, err)

	var types []events.EventType
	for _, e := range sink.Events() {
		types = append(types, e.Type())
	}
	assert.Equal(t, []events.EventType{
		events.EventTypeRoundStart,
		events.EventTypePartial,
		events.EventTypeToolCodeStart,
		events.EventTypePartial,
		events.EventTypeToolCodeStart,
		events.EventTypeToolCodeResult,
		events.EventTypeToolCodeResult,
		events.EventTypeRoundStart,
		events.EventTypePartial,
		events.EventTypeFinal,
	}, types)

	results := sink.OfType(events.EventTypeToolCodeResult)
	r0, ok := results[0].(*events.EventToolCodeResult)
	require.True(t, ok)
	r1, ok := results[1].(*events.EventToolCodeResult)
	require.True(t, ok)
	assert.Equal(t, 0, r0.ToolResult.Index)
	assert.Equal(t, "calc", r0.ToolResult.Name)
	assert.Equal(t, 1, r1.ToolResult.Index)
	assert.Equal(t, "weather", r1.ToolResult.Name)

	partials := sink.OfType(events.EventTypePartial)
	p, ok := partials[1].(*events.EventPartial)
	require.True(t, ok)
	assert.Equal(t, "a  b ", p.Completion)
}

func TestRoundLimit(t *testing.T) {
	sb := backend.NewScripted(
		text("first look\n", block("calc(a=1, b=1)")),
		text("second look\n", block("calc(a=2, b=2)")),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig().WithMaxRounds(2))

	s := conversation.NewState()
	answer, err := l.ProcessConversation(context.Background(), s, "loop forever")
	require.NoError(t, err)

	assert.Equal(t, 2, sb.Opened())
	assert.True(t, answer.RoundLimited)
	assert.Equal(t, "second look\n", answer.Text)
	require.Len(t, answer.Rounds, 2)
	last := answer.Rounds[1]
	assert.True(t, last.Terminal)
	assert.Equal(t, conversation.AnnotationRoundLimit, last.Annotation)
	assert.True(t, last.RoundLimited())

	// the model is told before its last permitted round
	turns := sb.Requests()[1].Turns
	assert.Contains(t, turns[len(turns)-1].Content, prompt.MaxIterationNotice)

	// tool turns of the last round are still recorded
	lastTurn, ok := s.LastTurn()
	require.True(t, ok)
	assert.Equal(t, conversation.RoleTool, lastTurn.Role)
	assert.Equal(t, 1, lastTurn.Round)
}

func TestRoundLimitFallsBackToLongestEarlierText(t *testing.T) {
	sb := backend.NewScripted(
		text("a fairly long explanation\n", block("calc(a=1, b=1)")),
		text("short\n", block("calc(a=1, b=1)")),
		text(block("calc(a=2, b=2)")),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig().WithMaxRounds(3))

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.True(t, answer.RoundLimited)
	assert.Equal(t, "a fairly long explanation\n", answer.Text)
}

func TestTransientFailureRetriesOnceThenFails(t *testing.T) {
	sb := backend.NewScripted(
		backend.ScriptedRound{Fail: backend.ErrorKindTimeout},
		backend.ScriptedRound{Fail: backend.ErrorKindTimeout},
		text("never reached"),
	)
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(sink))

	s := conversation.NewState()
	answer, err := l.ProcessConversation(context.Background(), s, "q")
	require.Error(t, err)
	assert.Nil(t, answer)

	var le *LoopError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, backend.ErrorKindTimeout, le.Kind)
	assert.Equal(t, 0, le.Round)
	require.Len(t, le.Trail, 1)
	assert.Equal(t, 2, le.Trail[0].Attempts)
	assert.Equal(t, conversation.AnnotationFailed, le.Trail[0].Annotation)
	assert.Equal(t, 2, sb.Opened())

	assert.Len(t, sink.OfType(events.EventTypeInfo), 1)
	assert.Len(t, sink.OfType(events.EventTypeError), 1)

	// only the user turn is left
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Rounds())
}

func TestTransientFailureRetryDiscardsAttemptText(t *testing.T) {
	sb := backend.NewScripted(
		backend.ScriptedRound{Chunks: []string{"half an ans"}, Fail: backend.ErrorKindRateLimit},
		text("hello"),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig())

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, "hello", answer.Text)
	require.Len(t, answer.Rounds, 1)
	assert.Equal(t, 2, answer.Rounds[0].Attempts)
	assert.Equal(t, "hello", answer.Rounds[0].Text)
}

func TestFatalFailureIsNotRetried(t *testing.T) {
	sb := backend.NewScripted(
		backend.ScriptedRound{Fail: backend.ErrorKindAuth},
		text("never reached"),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig())

	_, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	var le *LoopError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, backend.ErrorKindAuth, le.Kind)
	assert.Equal(t, 1, sb.Opened())
}

func TestRoundTimeout(t *testing.T) {
	sb := backend.NewScripted(
		backend.ScriptedRound{Chunks: []string{"thinking"}, Hang: true},
	).Repeat()
	l := newTestLoop(t, sb, DefaultLoopConfig().WithRoundTimeout(30*time.Millisecond))

	_, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	var le *LoopError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, backend.ErrorKindTimeout, le.Kind)
	assert.Equal(t, 2, sb.Opened())
}

func TestCancellationDuringStream(t *testing.T) {
	sb := backend.NewScripted(backend.ScriptedRound{Chunks: []string{"partial"}, Hang: true})
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	s := conversation.NewState()
	_, err := l.ProcessConversation(ctx, s, "q")
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, sb.Opened())

	var le *LoopError
	require.True(t, errors.As(err, &le))
	require.Len(t, le.Trail, 1)
	assert.Equal(t, conversation.AnnotationCanceled, le.Trail[0].Annotation)

	interrupts := sink.OfType(events.EventTypeInterrupt)
	require.Len(t, interrupts, 1)
	ie, ok := interrupts[0].(*events.EventInterrupt)
	require.True(t, ok)
	assert.Equal(t, "partial", ie.Text)
	assert.Equal(t, 1, s.Len())
}

func TestCancellationDuringDispatchDiscardsResults(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	reg := testRegistry(t, func(b *tools.RegistryBuilder) {
		b.RegisterFunc("slow", "", func(in cityInput) (string, error) {
			once.Do(func() { close(started) })
			time.Sleep(100 * time.Millisecond)
			return "late", nil
		})
	})
	sb := backend.NewScripted(text(block(`slow(city="x")`)), text("never reached"))
	l := New(WithBackend(sb), WithRegistry(reg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	s := conversation.NewState()
	_, err := l.ProcessConversation(ctx, s, "q")
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Rounds())
	assert.Equal(t, 1, sb.Opened())

	// let the detached tool call finish
	time.Sleep(150 * time.Millisecond)
}

func TestRequireFinalSegment(t *testing.T) {
	final := prompt.Header(prompt.SegmentFinalAnswer) + "\nThe answer is 4."
	sb := backend.NewScripted(
		text("It is probably 4."),
		text(final),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig().WithRequireFinalSegment(true))

	s := conversation.NewState()
	answer, err := l.ProcessConversation(context.Background(), s, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, final, answer.Text)
	assert.Equal(t, "The answer is 4.", answer.Answer)
	require.Len(t, answer.Rounds, 2)
	assert.Equal(t, conversation.AnnotationMissingAnswer, answer.Rounds[0].Annotation)

	turns := sb.Requests()[1].Turns
	require.Len(t, turns, 3)
	assert.Equal(t, conversation.RoleUser, turns[2].Role)
	assert.Equal(t, prompt.MissingFinalAnswerAlert, turns[2].Content)
	assert.Equal(t, 1, s.Exchanges())
}

func TestStopAtFirstInvocation(t *testing.T) {
	sb := backend.NewScripted(
		backend.ScriptedRound{
			Chunks:     []string{"a\n" + block("calc(a=1, b=2)"), "\n" + block("calc(a=5, b=5)")},
			ChunkDelay: 5 * time.Millisecond,
		},
		text("done"),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig().WithStopAtFirstInvocation(true))

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, "done", answer.Text)
	require.Len(t, answer.Rounds, 2)
	require.Len(t, answer.Rounds[0].Invocations, 1)
	assert.Equal(t, "a=1, b=2", answer.Rounds[0].Invocations[0].RawArgs)
	require.Len(t, answer.Rounds[0].Results, 1)
	assert.Equal(t, "3", answer.Rounds[0].Results[0].Value)
}

func TestStopAtFirstInvocationWithinOneChunk(t *testing.T) {
	sb := backend.NewScripted(
		text("a\n"+block("calc(a=1, b=2)")+"\n"+block("calc(a=5, b=5)")+" tail"),
		text("done"),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig().WithStopAtFirstInvocation(true))

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	require.Len(t, answer.Rounds, 2)
	first := answer.Rounds[0]
	require.Len(t, first.Invocations, 1)
	require.Len(t, first.Results, 1)
	assert.Equal(t, "3", first.Results[0].Value)
	assert.Equal(t, "a\n", first.PlainText)
	assert.Equal(t, "a\n"+block("calc(a=1, b=2)"), first.Text)
}

func TestUnterminatedBlockIsPlainTextWithWarning(t *testing.T) {
	sb := backend.NewScripted(text("hi ", "```tool_code\ncalc(a=1"))
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(sink))

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, "hi ```tool_code\ncalc(a=1", answer.Text)
	assert.Len(t, answer.Rounds[0].Warnings, 1)
	assert.Len(t, sink.OfType(events.EventTypeWarning), 1)
	assert.Equal(t, 1, sb.Opened())
}

func TestEmptyStreamIsTerminal(t *testing.T) {
	sb := backend.NewScripted(text())
	l := newTestLoop(t, sb, DefaultLoopConfig())

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", answer.Text)
	assert.True(t, answer.Rounds[0].Terminal)
}

func TestToolFailureIsFedBack(t *testing.T) {
	sb := backend.NewScripted(text(block("nope()")), text("sorry"))
	l := newTestLoop(t, sb, DefaultLoopConfig())

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, "sorry", answer.Text)

	turns := sb.Requests()[1].Turns
	toolTurn := turns[len(turns)-1]
	assert.Equal(t, string(tools.StatusError), toolTurn.ToolStatus)
	assert.Contains(t, toolTurn.Content, "Error: unknown tool: nope")
}

func TestSinkPanicDoesNotAbortLoop(t *testing.T) {
	sb := backend.NewScripted(text(block("calc(a=1, b=1)")), text("2"))
	panicky := events.CallbackSink(func(e events.Event) {
		panic("sink exploded")
	})
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithEventSinks(panicky))

	answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", answer.Text)
}

func TestContextSinksReceiveEvents(t *testing.T) {
	sb := backend.NewScripted(text("hello"))
	sink := &events.CollectingSink{}
	l := newTestLoop(t, sb, DefaultLoopConfig())

	ctx := events.WithEventSinks(context.Background(), sink)
	_, err := l.ProcessConversation(ctx, conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Len(t, sink.OfType(events.EventTypeFinal), 1)
}

func TestRegenerate(t *testing.T) {
	sb := backend.NewScripted(
		text("checking\n", block("calc(a=2, b=2)")),
		text("It is 4."),
		text("Definitely 4."),
	)
	l := newTestLoop(t, sb, DefaultLoopConfig())

	s := conversation.NewState()
	answer, err := l.ProcessConversation(context.Background(), s, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "It is 4.", answer.Text)

	answer, err = l.Regenerate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Definitely 4.", answer.Text)
	assert.Equal(t, 3, sb.Opened())

	reqs := sb.Requests()
	require.Len(t, reqs[2].Turns, len(reqs[1].Turns))
	for i := range reqs[1].Turns {
		assert.Equal(t, reqs[1].Turns[i].Content, reqs[2].Turns[i].Content)
	}

	require.Len(t, answer.Rounds, 2)
	assert.Equal(t, 1, answer.Rounds[1].Index)
	assert.Len(t, s.Rounds(), 2)
	last, _ := s.LastTurn()
	assert.Equal(t, "Definitely 4.", last.Content)
	assert.Equal(t, 1, s.Exchanges())
}

func TestRegenerateLoadedHistoryKeepsRoundIndex(t *testing.T) {
	sb := backend.NewScripted(text("Still 4."))
	l := newTestLoop(t, sb, DefaultLoopConfig())

	s := conversation.NewState()
	s.Load([]conversation.Turn{
		conversation.NewUserTurn("2+2?"),
		conversation.NewAssistantTurn("checking\n"+block("calc(a=2, b=2)"), 0),
		conversation.NewToolTurn("calc", "ok", "4", 0),
		conversation.NewAssistantTurn("It is 4.", 1),
	})

	answer, err := l.Regenerate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Still 4.", answer.Text)
	require.NotEmpty(t, answer.Rounds)
	assert.Equal(t, 1, answer.Rounds[len(answer.Rounds)-1].Index)
	require.Len(t, sb.Requests()[0].Turns, 3)
}

func TestWithdrawLastOnEmptyState(t *testing.T) {
	_, err := WithdrawLast(conversation.NewState())
	assert.ErrorIs(t, err, conversation.ErrNothingToWithdraw)
}

func TestSnapshotHookAndObserver(t *testing.T) {
	sb := backend.NewScripted(text(block("calc(a=1, b=1)")), text("2"))

	var phases []string
	var mu sync.Mutex
	var sawPending bool
	var lastState LoopState
	l := newTestLoop(t, sb, DefaultLoopConfig(),
		WithSnapshotHook(func(ctx context.Context, s *conversation.State, phase string) {
			phases = append(phases, phase)
		}),
		WithStateObserver(func(ls LoopState) {
			mu.Lock()
			defer mu.Unlock()
			if ls.Pending {
				sawPending = true
			}
			lastState = ls
		}),
	)

	_, err := l.ProcessConversation(context.Background(), conversation.NewState(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, []string{PhasePreRound, PhasePostRound, PhasePostTools, PhasePreRound, PhasePostRound}, phases)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawPending)
	assert.Equal(t, 1, lastState.RoundIndex)
	assert.Equal(t, 3, lastState.MaxRounds)
	assert.Equal(t, "2", lastState.AccumulatedAnswer)
}

func TestSnapshotHookFromContext(t *testing.T) {
	sb := backend.NewScripted(text("hi"))
	l := newTestLoop(t, sb, DefaultLoopConfig())

	var phases []string
	ctx := WithSnapshotHookContext(context.Background(), func(ctx context.Context, s *conversation.State, phase string) {
		phases = append(phases, phase)
	})
	_, err := l.ProcessConversation(ctx, conversation.NewState(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{PhasePreRound, PhasePostRound}, phases)
}

func TestStepControllerPausesBetweenRounds(t *testing.T) {
	sb := backend.NewScripted(text(block("calc(a=1, b=1)")), text("2"))
	sc := NewStepController()
	s := conversation.NewState()
	sc.Enable(s.ID)

	var pauses []string
	continuer := events.CallbackSink(func(e events.Event) {
		if p, ok := e.(*events.EventDebuggerPause); ok {
			pauses = append(pauses, p.Phase)
			go sc.Continue(p.PauseID)
		}
	})
	l := newTestLoop(t, sb, DefaultLoopConfig(),
		WithStepController(sc),
		WithPauseTimeout(5*time.Second),
		WithEventSinks(continuer),
	)

	answer, err := l.ProcessConversation(context.Background(), s, "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", answer.Text)
	assert.Equal(t, []string{string(StepPhaseAfterRound), string(StepPhaseAfterTools)}, pauses)
}

func TestFilePersister(t *testing.T) {
	dir := t.TempDir()
	p := &FilePersister{Dir: dir}
	sb := backend.NewScripted(text("hello"))
	l := newTestLoop(t, sb, DefaultLoopConfig(), WithPersister(p))

	s := conversation.NewState()
	_, err := l.ProcessConversation(context.Background(), s, "q")
	require.NoError(t, err)

	_, err = os.Stat(p.Path(s.ID))
	require.NoError(t, err)

	loaded, err := p.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.Len(), loaded.Len())
	assert.Len(t, loaded.Rounds(), 1)
}

func TestConfigurationErrors(t *testing.T) {
	s := conversation.NewState()

	_, err := New(WithRegistry(testRegistry(t))).ProcessConversation(context.Background(), s, "q")
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = New(WithBackend(backend.NewScripted())).ProcessConversation(context.Background(), s, "q")
	assert.ErrorIs(t, err, ErrNoDispatcher)

	l := newTestLoop(t, backend.NewScripted(), DefaultLoopConfig())
	_, err = l.ProcessConversation(context.Background(), s, "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentConversationsShareLoop(t *testing.T) {
	sb := backend.NewScripted(text("same answer")).Repeat()
	l := newTestLoop(t, sb, DefaultLoopConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answer, err := l.ProcessConversation(context.Background(), conversation.NewState(), "q")
			if assert.NoError(t, err) {
				assert.True(t, strings.HasPrefix(answer.Text, "same"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, sb.Opened())
}
