package openai

import (
	"context"
	"io"
	"net/http"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Backend streams from OpenAI or any OpenAI-compatible endpoint (BaseURL).
type Backend struct {
	client *go_openai.Client
	chat   *settings.ChatSettings
}

var _ backend.Backend = (*Backend)(nil)

func New(chat *settings.ChatSettings, clientSettings *settings.ClientSettings) (*Backend, error) {
	if chat == nil {
		return nil, errors.New("missing chat settings")
	}
	if chat.APIKey == "" {
		return nil, errors.New("no API key for openai")
	}
	config := go_openai.DefaultConfig(chat.APIKey)
	if chat.BaseURL != "" {
		config.BaseURL = chat.BaseURL
	}
	if clientSettings != nil && clientSettings.Timeout != nil {
		config.HTTPClient = &http.Client{Timeout: *clientSettings.Timeout}
	}
	return &Backend{
		client: go_openai.NewClientWithConfig(config),
		chat:   chat.Clone(),
	}, nil
}

func (b *Backend) Name() string {
	return "openai"
}

func (b *Backend) OpenStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamEvent, error) {
	chat := b.chat
	if req.Settings != nil {
		chat = req.Settings
	}
	request := MakeCompletionRequest(chat, req.SystemPrompt, req.Turns)

	log.Debug().
		Str("model", request.Model).
		Int("messages", len(request.Messages)).
		Msg("OpenAI opening stream")

	return backend.Stream(ctx, b.Name(), func(ctx context.Context, emit func(string) error) error {
		stream, err := b.client.CreateChatCompletionStream(ctx, request)
		if err != nil {
			return wrapError(err)
		}
		defer stream.Close()

		chunkCount := 0
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Int("chunks_received", chunkCount).Msg("OpenAI stream completed")
				return nil
			}
			if err != nil {
				return wrapError(err)
			}
			chunkCount++
			if len(response.Choices) == 0 {
				continue
			}
			if err := emit(response.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}), nil
}

// MakeCompletionRequest maps the history to chat messages. Tool turns are sent
// as user messages because they carry free-form feedback, not tool_call replies.
func MakeCompletionRequest(chat *settings.ChatSettings, systemPrompt string, turns []conversation.Turn) go_openai.ChatCompletionRequest {
	system, rest := backend.SplitSystem(systemPrompt, turns)

	messages := make([]go_openai.ChatCompletionMessage, 0, len(rest)+1)
	if system != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, t := range rest {
		role := go_openai.ChatMessageRoleUser
		if t.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}

	req := go_openai.ChatCompletionRequest{
		Model:    chat.Model,
		Messages: messages,
		Stream:   true,
		Stop:     chat.Stop,
	}
	if chat.MaxResponseTokens != nil {
		req.MaxTokens = *chat.MaxResponseTokens
	}
	if chat.Temperature != nil {
		req.Temperature = float32(*chat.Temperature)
	}
	if chat.TopP != nil {
		req.TopP = float32(*chat.TopP)
	}
	if chat.PresencePenalty != nil {
		req.PresencePenalty = float32(*chat.PresencePenalty)
	}
	return req
}

// wrapError attaches the HTTP status carried by go-openai errors so the
// failure can be classified.
func wrapError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := backend.KindForStatus(apiErr.HTTPStatusCode); ok {
			return &backend.StreamFailure{Kind: kind, Err: err}
		}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		if kind, ok := backend.KindForStatus(reqErr.HTTPStatusCode); ok {
			return &backend.StreamFailure{Kind: kind, Err: err}
		}
	}
	return err
}
