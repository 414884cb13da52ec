package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() EventMetadata {
	return NewEventMetadata("conv-1", 1, 1, "test-model")
}

func TestPublishRecoversFromSinkFailures(t *testing.T) {
	var got []Event
	panicky := CallbackSink(func(Event) { panic("boom") })
	failing := sinkFunc(func(Event) error { return errors.New("nope") })
	collecting := CallbackSink(func(e Event) { got = append(got, e) })

	assert.NotPanics(t, func() {
		Publish(NewPartialEvent(testMeta(), "a", "a"), panicky, failing, nil, collecting)
	})
	require.Len(t, got, 1)
	assert.Equal(t, EventTypePartial, got[0].Type())
}

func TestContextSinks(t *testing.T) {
	c1 := &CollectingSink{}
	c2 := &CollectingSink{}
	ctx := WithEventSinks(context.Background(), c1)
	ctx = WithEventSinks(ctx, c2)

	PublishEventToContext(ctx, NewInfoEvent(testMeta(), "hello", nil))
	PublishEventToContext(context.Background(), NewInfoEvent(testMeta(), "dropped", nil))

	assert.Len(t, c1.Events(), 1)
	assert.Len(t, c2.Events(), 1)
	assert.Len(t, c1.OfType(EventTypeInfo), 1)
	assert.Empty(t, c1.OfType(EventTypeFinal))
}

func TestNewEventFromJSON(t *testing.T) {
	in := []Event{
		NewRoundStartEvent(testMeta(), 3),
		NewPartialEvent(testMeta(), "x", "abx"),
		NewToolCodeStartEvent(testMeta(), ToolCall{Index: 0, Name: "calc", Args: `expr="1+1"`}),
		NewToolCodeResultEvent(testMeta(), ToolResult{Index: 0, Name: "calc", Status: "ok", Value: "2"}),
		NewWarningEvent(testMeta(), "unterminated tool block", 12),
		NewErrorEvent(testMeta(), "auth", errors.New("bad key")),
		NewFinalEvent(testMeta(), "text", "answer", true),
		NewInterruptEvent(testMeta(), "partial"),
		NewDebuggerPauseEvent(testMeta(), "p1", "after_tools", "review", 0, nil),
	}

	for _, ev := range in {
		t.Run(string(ev.Type()), func(t *testing.T) {
			b, err := json.Marshal(ev)
			require.NoError(t, err)
			out, err := NewEventFromJSON(b)
			require.NoError(t, err)
			assert.IsType(t, ev, out)
			assert.Equal(t, ev.Type(), out.Type())
			assert.Equal(t, ev.Metadata().ID, out.Metadata().ID)
			assert.Equal(t, b, out.Payload())
		})
	}

	final, err := NewEventFromJSON(mustJSON(t, NewFinalEvent(testMeta(), "t", "a", true)))
	require.NoError(t, err)
	assert.True(t, final.(*EventFinal).RoundLimited)
}

func TestNewEventFromJSONUnknownType(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"something-else","meta":{"round":2}}`))
	require.NoError(t, err)
	assert.Equal(t, EventType("something-else"), ev.Type())
	assert.Equal(t, 2, ev.Metadata().Round)

	_, err = NewEventFromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestPrinterFunc(t *testing.T) {
	var buf bytes.Buffer
	p := PrinterFunc(&buf, PrinterOptions{ShowToolCalls: true, ShowToolResults: true})

	require.NoError(t, p(NewPartialEvent(testMeta(), "Hello", "Hello")))
	require.NoError(t, p(NewToolCodeStartEvent(testMeta(), ToolCall{Name: "calc", Args: "1+1"})))
	require.NoError(t, p(NewToolCodeResultEvent(testMeta(), ToolResult{Name: "calc", Status: "ok", Value: "2"})))
	require.NoError(t, p(NewFinalEvent(testMeta(), "Hello", "Hello", false)))

	out := buf.String()
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "tool_call:")
	assert.Contains(t, out, "name: calc")
	assert.Contains(t, out, "value: \"2\"")
}

func TestEventRouter(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var mu sync.Mutex
	var received []Event
	router.AddHandler("collect", DefaultTopic, func(e Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewPartialEvent(testMeta(), "a", "a")))
	require.NoError(t, sink.PublishEvent(NewFinalEvent(testMeta(), "a", "a", false)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, EventTypePartial, received[0].Type())
	assert.IsType(t, &EventFinal{}, received[1])
	mu.Unlock()

	require.NoError(t, router.Close())
	cancel()
	<-done
}
