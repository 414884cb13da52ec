package gemini

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/go-go-golems/autocot/pkg/backend"
	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/go-go-golems/autocot/pkg/settings"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// Backend streams from the Gemini API.
type Backend struct {
	chat    *settings.ChatSettings
	options []option.ClientOption
}

var _ backend.Backend = (*Backend)(nil)

func New(chat *settings.ChatSettings, clientSettings *settings.ClientSettings) (*Backend, error) {
	if chat == nil {
		return nil, errors.New("missing chat settings")
	}
	if chat.APIKey == "" {
		return nil, errors.New("no API key for gemini")
	}
	return &Backend{
		chat:    chat.Clone(),
		options: ClientOptions(chat, clientSettings),
	}, nil
}

// ClientOptions builds the genai client options for the given settings.
func ClientOptions(chat *settings.ChatSettings, clientSettings *settings.ClientSettings) []option.ClientOption {
	opts := []option.ClientOption{option.WithAPIKey(chat.APIKey)}
	if chat.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(chat.BaseURL))
	}
	if clientSettings != nil && clientSettings.UserAgent != nil {
		opts = append(opts, option.WithUserAgent(*clientSettings.UserAgent))
	}
	return opts
}

func (b *Backend) Name() string {
	return "gemini"
}

func (b *Backend) OpenStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamEvent, error) {
	chat := b.chat
	if req.Settings != nil {
		chat = req.Settings
	}
	system, rest := backend.SplitSystem(req.SystemPrompt, req.Turns)
	history, last, err := BuildHistory(rest)
	if err != nil {
		return nil, err
	}

	return backend.Stream(ctx, b.Name(), func(ctx context.Context, emit func(string) error) error {
		client, err := genai.NewClient(ctx, b.options...)
		if err != nil {
			return errors.Wrap(err, "failed to create gemini client")
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close gemini client")
			}
		}()

		model := client.GenerativeModel(chat.Model)
		configureModel(model, chat, system)

		session := model.StartChat()
		session.History = history

		log.Debug().
			Str("model", chat.Model).
			Int("history", len(history)).
			Msg("Gemini opening stream")

		var filter *ThoughtFilter
		if chat.IsThinkingModel() {
			filter = &ThoughtFilter{}
		}

		it := session.SendMessageStream(ctx, last...)
		chunkCount := 0
		received := false
		finishReason := genai.FinishReasonUnspecified
		for {
			resp, err := it.Next()
			if err == iterator.Done || errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Debug().Err(err).Int("chunks_received", chunkCount).Msg("Gemini stream receive failed")
				return wrapError(err)
			}
			chunkCount++

			delta := ""
			for _, cand := range resp.Candidates {
				if cand.FinishReason != genai.FinishReasonUnspecified {
					finishReason = cand.FinishReason
				}
				if cand.Content == nil {
					continue
				}
				for _, p := range cand.Content.Parts {
					if t, ok := p.(genai.Text); ok {
						delta += string(t)
					}
				}
			}
			if filter != nil {
				delta = filter.Feed(delta)
			}
			if delta != "" {
				received = true
			}
			if err := emit(delta); err != nil {
				return err
			}
		}
		if filter != nil {
			rest := filter.Flush()
			if rest != "" {
				received = true
			}
			if err := emit(rest); err != nil {
				return err
			}
		}

		log.Debug().
			Int("chunks_received", chunkCount).
			Str("finish_reason", finishReason.String()).
			Msg("Gemini stream completed")

		if !received && finishReason != genai.FinishReasonStop && finishReason != genai.FinishReasonUnspecified {
			return &backend.StreamFailure{
				Kind: backend.ErrorKindMalformed,
				Err:  errors.Errorf("no text generated, finish reason %s", finishReason),
			}
		}
		return nil
	}), nil
}

func configureModel(model *genai.GenerativeModel, chat *settings.ChatSettings, system string) {
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if chat.Temperature != nil {
		model.SetTemperature(float32(*chat.Temperature))
	}
	if chat.TopP != nil {
		model.SetTopP(float32(*chat.TopP))
	}
	if chat.TopK != nil {
		model.SetTopK(clampInt32(*chat.TopK))
	}
	if chat.MaxResponseTokens != nil {
		model.SetMaxOutputTokens(clampInt32(*chat.MaxResponseTokens))
	}
	if len(chat.Stop) > 0 {
		model.StopSequences = chat.Stop
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
}

func clampInt32(v int) int32 {
	if v < 0 {
		log.Warn().Int("value", v).Msg("negative value; clamping to 0")
		return 0
	}
	if v > math.MaxInt32 {
		log.Warn().Int("value", v).Msg("value exceeds int32; clamping")
		return math.MaxInt32
	}
	return int32(v) // #nosec G115
}

func roleOf(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return roleModel
	}
	return roleUser
}

// BuildHistory maps turns to Gemini contents. Tool turns are sent as user
// text and merged with neighbouring user turns. The final user message is
// returned separately because the chat session sends it.
func BuildHistory(turns []conversation.Turn) ([]*genai.Content, []genai.Part, error) {
	messages := backend.MergeConsecutive(turns, roleOf)
	if len(messages) == 0 {
		return nil, nil, errors.New("no content to send to the model")
	}
	last := messages[len(messages)-1]
	if last.Role != roleUser {
		return nil, nil, errors.New("conversation must end with a user or tool turn")
	}

	history := make([]*genai.Content, 0, len(messages)-1)
	for _, m := range messages[:len(messages)-1] {
		history = append(history, &genai.Content{
			Role:  m.Role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history, []genai.Part{genai.Text(last.Content)}, nil
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if kind, ok := backend.KindForStatus(gerr.Code); ok {
			return &backend.StreamFailure{Kind: kind, Err: fmt.Errorf("gemini api: %w", err)}
		}
	}
	return err
}
