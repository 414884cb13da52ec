package toolloop

import (
	"time"

	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/go-go-golems/autocot/pkg/toolcode"
)

// LoopConfig configures the round controller.
type LoopConfig struct {
	MaxRounds    int
	RoundTimeout time.Duration
	// APIDelay is slept between rounds to stay under provider rate limits.
	APIDelay              time.Duration
	StopAtFirstInvocation bool
	RequireFinalSegment   bool
	ScannerOptions        []toolcode.Option
}

func DefaultLoopConfig() LoopConfig {
	cfg, _ := LoopConfigFromSettings(settings.NewLoopSettings())
	return cfg
}

// LoopConfigFromSettings resolves the grammar name and markers of s.
func LoopConfigFromSettings(s settings.LoopSettings) (LoopConfig, error) {
	grammar, err := toolcode.GrammarByName(s.Grammar)
	if err != nil {
		return LoopConfig{}, err
	}
	opts := []toolcode.Option{
		toolcode.WithMarkers(toolcode.Markers{Start: s.StartMarker, End: s.EndMarker}),
		toolcode.WithGrammar(grammar),
	}
	if s.MaxBlockBytes > 0 {
		opts = append(opts, toolcode.WithMaxBlockBytes(s.MaxBlockBytes))
	}
	return LoopConfig{
		MaxRounds:             s.MaxRounds,
		RoundTimeout:          s.RoundTimeout,
		APIDelay:              s.APIDelay,
		StopAtFirstInvocation: s.StopAtFirstInvocation,
		RequireFinalSegment:   s.RequireFinalSegment,
		ScannerOptions:        opts,
	}, nil
}

// WithMaxRounds sets the maximum number of rounds per user message.
func (c LoopConfig) WithMaxRounds(n int) LoopConfig {
	c.MaxRounds = n
	return c
}

// WithRoundTimeout sets the wall-clock budget of one stream attempt.
func (c LoopConfig) WithRoundTimeout(d time.Duration) LoopConfig {
	c.RoundTimeout = d
	return c
}

func (c LoopConfig) WithAPIDelay(d time.Duration) LoopConfig {
	c.APIDelay = d
	return c
}

func (c LoopConfig) WithStopAtFirstInvocation(v bool) LoopConfig {
	c.StopAtFirstInvocation = v
	return c
}

func (c LoopConfig) WithRequireFinalSegment(v bool) LoopConfig {
	c.RequireFinalSegment = v
	return c
}

func (c LoopConfig) WithScannerOptions(opts ...toolcode.Option) LoopConfig {
	c.ScannerOptions = append(append([]toolcode.Option{}, c.ScannerOptions...), opts...)
	return c
}
