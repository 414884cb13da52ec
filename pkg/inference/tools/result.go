package tools

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-go-golems/autocot/pkg/toolcode"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Error types carried by failed results.
const (
	ErrorTypeNotFound   = "not_found"
	ErrorTypeNotAllowed = "not_allowed"
	ErrorTypeValidation = "validation"
	ErrorTypeExecution  = "execution"
	ErrorTypePanic      = "panic"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeCanceled   = "canceled"
)

// ToolResult is the outcome of one invocation. Value is what the model gets to read.
type ToolResult struct {
	Status     Status              `json:"status" yaml:"status"`
	Value      string              `json:"value" yaml:"value"`
	ErrorType  string              `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Invocation toolcode.Invocation `json:"invocation" yaml:"invocation"`
	// Index is the position of the invocation in the round's emission order.
	Index    int           `json:"index" yaml:"index"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func (r ToolResult) OK() bool {
	return r.Status == StatusOK
}

func okResult(inv toolcode.Invocation, value string) ToolResult {
	return ToolResult{Status: StatusOK, Value: value, Invocation: inv}
}

func errorResult(inv toolcode.Invocation, errorType string, value string) ToolResult {
	return ToolResult{Status: StatusError, Value: value, ErrorType: errorType, Invocation: inv}
}

// ToolError is a failed invocation as a Go error.
type ToolError struct {
	ToolName string `json:"tool_name"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error [%s] %s: %s", e.Type, e.ToolName, e.Message)
}

// Err returns the failure as a *ToolError, or nil for successful results.
func (r ToolResult) Err() error {
	if r.OK() {
		return nil
	}
	return &ToolError{ToolName: r.Invocation.Name, Type: r.ErrorType, Message: r.Value}
}

const truncationNotice = "\n[output truncated]"

// renderValue turns a tool's return value into the text shown to the model.
func renderValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	case error:
		return t.Error(), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// truncateOutput cuts s to at most max bytes on a rune boundary.
func truncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationNotice
}
