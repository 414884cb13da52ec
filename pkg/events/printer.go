package events

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type PrinterOptions struct {
	// ShowToolCalls prints toolcode-start events as YAML.
	ShowToolCalls bool
	// ShowToolResults prints toolcode-result events as YAML.
	ShowToolResults bool
	// ShowRounds prints a header when a round starts.
	ShowRounds bool
}

// PrinterFunc renders events for a terminal: partial text is streamed as is,
// tool activity is printed as YAML.
func PrinterFunc(w io.Writer, opts PrinterOptions) func(Event) error {
	lastText := ""

	return func(e Event) error {
		switch p_ := e.(type) {
		case *EventRoundStart:
			if opts.ShowRounds {
				if _, err := fmt.Fprintf(w, "\n--- round %d/%d (attempt %d) ---\n", p_.Metadata_.Round+1, p_.MaxRounds, p_.Metadata_.Attempt); err != nil {
					return err
				}
			}

		case *EventPartial:
			lastText = p_.Completion
			if _, err := fmt.Fprint(w, p_.Delta); err != nil {
				return err
			}

		case *EventToolCodeStart:
			if !opts.ShowToolCalls {
				return nil
			}
			return printYAML(w, "tool_call", p_.ToolCall)

		case *EventToolCodeResult:
			if !opts.ShowToolResults {
				return nil
			}
			return printYAML(w, "tool_result", p_.ToolResult)

		case *EventWarning:
			if _, err := fmt.Fprintf(w, "\n[!] %s\n", p_.Message); err != nil {
				return err
			}

		case *EventInfo:
			if _, err := fmt.Fprintf(w, "\n[i] %s\n", p_.Message); err != nil {
				return err
			}
			if len(p_.Data) > 0 {
				v_, err := yaml.Marshal(p_.Data)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(w, "%s\n", v_); err != nil {
					return err
				}
			}

		case *EventError:
			if _, err := fmt.Fprintf(w, "\n[error] %s\n", p_.ErrorString); err != nil {
				return err
			}

		case *EventInterrupt:
			if _, err := fmt.Fprintf(w, "\n[interrupted]\n"); err != nil {
				return err
			}

		case *EventFinal:
			if !strings.HasSuffix(lastText, "\n") {
				if _, err := fmt.Fprintf(w, "\n"); err != nil {
					return err
				}
			}
		}

		return nil
	}
}

// PrinterSink wraps PrinterFunc as an EventSink.
func PrinterSink(w io.Writer, opts PrinterOptions) EventSink {
	f := PrinterFunc(w, opts)
	return sinkFunc(f)
}

type sinkFunc func(Event) error

func (f sinkFunc) PublishEvent(e Event) error {
	return f(e)
}

func printYAML(w io.Writer, key string, v interface{}) error {
	v_, err := yaml.Marshal(map[string]interface{}{key: v})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s", v_)
	return err
}
