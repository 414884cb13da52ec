package settings

type ApiType string

const (
	ApiTypeOpenAI ApiType = "openai"
	ApiTypeGemini ApiType = "gemini"
	// ApiTypeScripted replays canned rounds, used by offline demos and tests.
	ApiTypeScripted ApiType = "scripted"
)

func (a ApiType) Valid() bool {
	switch a {
	case ApiTypeOpenAI, ApiTypeGemini, ApiTypeScripted:
		return true
	}
	return false
}
