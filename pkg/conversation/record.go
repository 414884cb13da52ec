package conversation

import (
	"time"

	"github.com/go-go-golems/autocot/pkg/inference/tools"
	"github.com/go-go-golems/autocot/pkg/toolcode"
)

const (
	AnnotationRoundLimit = "round-limit"
	AnnotationCanceled   = "canceled"
	AnnotationFailed     = "failed"
	// AnnotationMissingAnswer marks a round whose text had no final-answer segment.
	AnnotationMissingAnswer = "missing-final-answer"
)

// RoundRecord is the audit trail of one COT round.
type RoundRecord struct {
	// Exchange counts user messages; all rounds answering the same message share it.
	Exchange    int                   `yaml:"exchange" json:"exchange"`
	Index       int                   `yaml:"index" json:"index"`
	Text        string                `yaml:"text" json:"text"`
	PlainText   string                `yaml:"plain_text" json:"plain_text"`
	Invocations []toolcode.Invocation `yaml:"invocations,omitempty" json:"invocations,omitempty"`
	Results     []tools.ToolResult    `yaml:"results,omitempty" json:"results,omitempty"`
	Warnings    []toolcode.Warning    `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Terminal    bool                  `yaml:"terminal" json:"terminal"`
	Annotation  string                `yaml:"annotation,omitempty" json:"annotation,omitempty"`
	Attempts    int                   `yaml:"attempts" json:"attempts"`
	Error       string                `yaml:"error,omitempty" json:"error,omitempty"`
	Started     time.Time             `yaml:"started" json:"started"`
	Duration    time.Duration         `yaml:"duration" json:"duration"`
}

func (r RoundRecord) RoundLimited() bool {
	return r.Annotation == AnnotationRoundLimit
}
