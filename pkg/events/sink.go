package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink receives events in emission order. Implementations must not block
// for long; the loop publishes synchronously.
type EventSink interface {
	PublishEvent(event Event) error
}

// CallbackSink adapts a plain function.
type CallbackSink func(event Event)

func (f CallbackSink) PublishEvent(event Event) error {
	f(event)
	return nil
}

// NullSink drops every event.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error {
	return nil
}

// CollectingSink keeps every event it receives. Used by tests and the CLI trail.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *CollectingSink) PublishEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *CollectingSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// OfType returns the collected events of type t.
func (c *CollectingSink) OfType(t EventType) []Event {
	ret := []Event{}
	for _, e := range c.Events() {
		if e.Type() == t {
			ret = append(ret, e)
		}
	}
	return ret
}

// Publish hands event to every sink. Sink errors are logged and panics are
// recovered so a misbehaving sink never aborts the caller.
func Publish(event Event, sinks ...EventSink) {
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := safePublish(sink, event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("event sink failed")
		}
	}
}

func safePublish(sink EventSink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in event sink: %v", r)
		}
	}()
	return sink.PublishEvent(event)
}

type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
)

// WithEventSinks attaches one or more EventSink instances to the context.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := append([]EventSink{}, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

func GetEventSinks(ctx context.Context) []EventSink {
	if v := ctx.Value(ctxKeyEventSinks); v != nil {
		if sinks, ok := v.([]EventSink); ok {
			return sinks
		}
	}
	return nil
}

// PublishEventToContext publishes event to all sinks stored in ctx.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		log.Trace().Str("event_type", string(event.Type())).Msg("no sinks in context")
		return
	}
	Publish(event, sinks...)
}
