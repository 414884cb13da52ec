package prompt

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// CleanHTMLRules is the default description of the final answer format.
const CleanHTMLRules = `The content of the final answer MUST be a well-formed HTML snippet.
- Default to simplicity: use the simplest tags that convey the information (p, strong, ul, li, code).
- Only use complex structures such as tables or styled divs when the user explicitly asks for them.
- Embed every key fact in the markup so it can be extracted by an HTML parser.`

const toolsTemplate = `--- [ToolCode Format Start] ---
{{ range .Tools -}}
+ use the ` + "`tool_code`" + ` to *{{ .Description }}*
{{- with .Detail }}
    {{ . | trim }}
{{- end }}
> tool_code format:
    {{ $.Start | trimSuffix "\n" }}
    {{ $.Namespace }}{{ .Signature }}{{ $.Close }}
    {{ $.End | trimPrefix "\n" }}
> e.g.,
    {{ $.Start | trimSuffix "\n" }}
    {{ $.Namespace }}{{ .ExampleCall }}{{ $.Close }}
    {{ $.End | trimPrefix "\n" }}

{{ end -}}
--- [ToolCode Format End] ---
`

const systemTemplate = `{{ header "system_alert" }}
# You are a ReAct agent. Your output is split into segments, each starting with a header tag ` + "`{{ header \"NAME\" }}`" + ` followed by its content.
# Only segments that start with a header are processed, everything else is ignored.

Your response must follow one of these flows.

**Flow A: with tool usage**
{{ header "think" }} -> {{ header "call_tool_code" }} -> {{ header "system_feedback" }} -> {{ header "think" }} ... -> {{ header "send_response_to_user" }}

**Flow B: without tool usage**
{{ header "think" }} -> {{ header "send_response_to_user" }}

Segment descriptions:
* {{ header "think" }}: starts each reasoning cycle. State your intent and plan in the first person. For math problems write down the equations and solve them step by step.
* {{ header "call_tool_code" }}: contains exactly one tool_code block when a tool is needed. Stop after the block and wait for the result.
* {{ header "system_feedback" }}: written by the system with the status and result of the tool call. Never write it yourself.
* {{ header "send_response_to_user" }}: the only segment visible to the user. It contains the final answer.

{{ header "agent_character" }}
{{ .Character | default "You are a helpful assistant." }}

{{ header "agent_tools" }}
{{ .Tools }}
{{ header "agent_response_tags" }}
{{ .ResponseRules | default "" }}
`

// Options controls how tool calls are shown to the model. Start and End must
// match the scanner's markers.
type Options struct {
	Start     string
	End       string
	Namespace string
}

func DefaultOptions() Options {
	return Options{
		Start:     "```tool_code\n",
		End:       "\n```",
		Namespace: "print(default_api.",
	}
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["header"] = Header
	return fm
}

// BuildToolPrompt renders the tool section of the system prompt.
func BuildToolPrompt(infos []ToolInfo, opts Options) (string, error) {
	t, err := template.New("tools").Funcs(funcMap()).Parse(toolsTemplate)
	if err != nil {
		return "", errors.Wrap(err, "could not parse tools template")
	}
	closeParen := strings.Repeat(")", strings.Count(opts.Namespace, "("))
	var buf bytes.Buffer
	err = t.Execute(&buf, map[string]interface{}{
		"Tools":     infos,
		"Start":     opts.Start,
		"End":       opts.End,
		"Namespace": opts.Namespace,
		"Close":     closeParen,
	})
	if err != nil {
		return "", errors.Wrap(err, "could not render tools template")
	}
	return buf.String(), nil
}

// CotSystemPrompt renders the full system prompt: protocol description,
// character, tool section and response rules.
func CotSystemPrompt(character string, infos []ToolInfo, responseRules string, opts Options) (string, error) {
	toolSection, err := BuildToolPrompt(infos, opts)
	if err != nil {
		return "", err
	}
	t, err := template.New("system").Funcs(funcMap()).Parse(systemTemplate)
	if err != nil {
		return "", errors.Wrap(err, "could not parse system template")
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, map[string]interface{}{
		"Character":     character,
		"Tools":         toolSection,
		"ResponseRules": responseRules,
	})
	if err != nil {
		return "", errors.Wrap(err, "could not render system template")
	}
	return buf.String(), nil
}
