package events

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventMetadata is attached to every event published by the loop.
type EventMetadata struct {
	ID             uuid.UUID `json:"message_id" yaml:"message_id" mapstructure:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty" mapstructure:"conversation_id"`
	Round          int       `json:"round" yaml:"round" mapstructure:"round"`
	Attempt        int       `json:"attempt,omitempty" yaml:"attempt,omitempty" mapstructure:"attempt"`
	Model          string    `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	DurationMs     *int64    `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty" mapstructure:"duration_ms"`
	// Extra carries caller-specific values
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty" mapstructure:"extra"`
}

func NewEventMetadata(conversationID string, round int, attempt int, model string) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Round:          round,
		Attempt:        attempt,
		Model:          model,
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	e.Int("round", em.Round)
	if em.Attempt > 0 {
		e.Int("attempt", em.Attempt)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
	if len(em.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(em.Extra))
	}
}
