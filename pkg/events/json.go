package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventCodec decodes a JSON payload into a concrete Event instance.
type EventCodec func([]byte) (Event, error)

var (
	codecsMu sync.RWMutex
	codecs   = map[EventType]EventCodec{}
)

// RegisterEventCodec registers a decoder for a custom event type.
func RegisterEventCodec(t EventType, dec EventCodec) error {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	if _, exists := codecs[t]; exists {
		return fmt.Errorf("decoder already registered for type %q", t)
	}
	codecs[t] = dec
	return nil
}

func lookupCodec(t EventType) EventCodec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	return codecs[t]
}

func NewEventFromJSON(b []byte) (Event, error) {
	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}
	e.payload = b

	if dec := lookupCodec(e.Type_); dec != nil {
		ev, err := dec(b)
		if err != nil {
			return nil, err
		}
		if setter, ok := ev.(interface{ SetPayload([]byte) }); ok {
			setter.SetPayload(b)
		}
		return ev, nil
	}

	switch e.Type_ {
	case EventTypeRoundStart:
		return decode[EventRoundStart](e)
	case EventTypePartial:
		return decode[EventPartial](e)
	case EventTypeToolCodeStart:
		return decode[EventToolCodeStart](e)
	case EventTypeToolCodeResult:
		return decode[EventToolCodeResult](e)
	case EventTypeWarning:
		return decode[EventWarning](e)
	case EventTypeInfo:
		return decode[EventInfo](e)
	case EventTypeError:
		return decode[EventError](e)
	case EventTypeFinal:
		return decode[EventFinal](e)
	case EventTypeInterrupt:
		return decode[EventInterrupt](e)
	case EventTypeDebuggerPause:
		return decode[EventDebuggerPause](e)
	}

	return e, nil
}

type typedEvent[T any] interface {
	*T
	Event
	SetPayload([]byte)
}

func decode[T any, PT typedEvent[T]](e Event) (Event, error) {
	ret, ok := ToTypedEvent[T](e)
	if !ok {
		return nil, fmt.Errorf("could not cast event to %T", ret)
	}
	PT(ret).SetPayload(e.Payload())
	return PT(ret), nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}
	return ret, true
}
