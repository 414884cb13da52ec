package conversation

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCount is an estimate of how much context the history occupies.
type TokenCount struct {
	Total  int
	ByRole map[Role]int
}

// EstimateTokens counts tokens of every turn with the given encoding
// (cl100k_base when empty). Provider tokenizers differ, so this is an estimate.
func (s *State) EstimateTokens(encoding string) (TokenCount, error) {
	if encoding == "" {
		encoding = string(tokenizer.Cl100kBase)
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return TokenCount{}, errors.Wrapf(err, "unknown encoding %s", encoding)
	}

	ret := TokenCount{ByRole: map[Role]int{}}
	for _, t := range s.turns {
		ids, _, err := codec.Encode(t.Content)
		if err != nil {
			return TokenCount{}, errors.Wrap(err, "could not encode turn")
		}
		ret.Total += len(ids)
		ret.ByRole[t.Role] += len(ids)
	}
	return ret, nil
}
