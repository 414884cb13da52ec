package gemini

import (
	"context"
	"regexp"
	"sort"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var versionedModel = regexp.MustCompile(`^gemini-([1-9]|10)\.([0-9]|10)-`)

var excludedModelKeywords = []string{
	"vision",
	"embedding",
	"audio",
	"tts",
	"exp",
	"native",
	"dialog",
	"live",
	"image",
}

// IsChatModel reports whether a model id is a text generation model usable
// by the loop. Thinking models are kept; their thoughts are filtered.
func IsChatModel(id string) bool {
	if !versionedModel.MatchString(id) && !strings.HasPrefix(id, "gemini-") {
		return false
	}
	lower := strings.ToLower(id)
	for _, kw := range excludedModelKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// FilterModels keeps chat models, optionally restricted to those matching pattern.
func FilterModels(ids []string, pattern string) ([]string, error) {
	ret := []string{}
	for _, id := range ids {
		id = strings.TrimPrefix(id, "models/")
		if !IsChatModel(id) {
			continue
		}
		if pattern != "" {
			ok, err := glob.Match(pattern, id)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid model pattern %q", pattern)
			}
			if !ok {
				continue
			}
		}
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret, nil
}

// ListModels fetches the models that support content generation.
func ListModels(ctx context.Context, apiKey string, pattern string, opts ...option.ClientOption) ([]string, error) {
	if apiKey == "" {
		return nil, errors.New("no API key for gemini")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	defer func() {
		_ = client.Close()
	}()

	var ids []string
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(wrapError(err), "failed to fetch models")
		}
		if !supportsGenerate(m) {
			continue
		}
		ids = append(ids, m.Name)
	}
	return FilterModels(ids, pattern)
}

func supportsGenerate(m *genai.ModelInfo) bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}
