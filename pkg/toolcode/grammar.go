package toolcode

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// CallGrammar splits a block payload into a tool name and its unparsed arguments.
type CallGrammar interface {
	Split(payload string) (name string, rawArgs string, err error)
}

var (
	ErrEmptyBlock      = errors.New("empty tool block")
	ErrNoCall          = errors.New("no tool call found")
	ErrUnbalancedParen = errors.New("unbalanced parentheses in tool call")
)

// PythonCallGrammar accepts a single call expression in one of the forms
//
//	print(default_api.name(args))
//	default_api.name(args)
//	name(args)
type PythonCallGrammar struct {
	// Namespace is the object prefix stripped from the callee, "default_api" when empty.
	Namespace string
}

func (g PythonCallGrammar) Split(payload string) (string, string, error) {
	s := strings.TrimSpace(payload)
	if s == "" {
		return "", "", ErrEmptyBlock
	}

	if inner, ok, err := unwrapCall(s, "print"); err != nil {
		return "", "", err
	} else if ok {
		s = strings.TrimSpace(inner)
	}

	ns := g.Namespace
	if ns == "" {
		ns = "default_api"
	}
	s = strings.TrimPrefix(s, ns+".")

	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", "", errors.Wrapf(ErrNoCall, "in %q", truncate(s, 40))
	}
	name := strings.TrimSpace(s[:open])
	if !isIdentifier(name) {
		return "", "", errors.Errorf("invalid tool name %q", truncate(name, 40))
	}
	closeIdx, err := matchParen(s, open)
	if err != nil {
		return "", "", err
	}
	if rest := strings.TrimSpace(s[closeIdx+1:]); rest != "" {
		return "", "", errors.Errorf("unexpected content after tool call: %q", truncate(rest, 40))
	}
	return name, strings.TrimSpace(s[open+1 : closeIdx]), nil
}

// unwrapCall strips fn( ... ) when it encloses all of s.
func unwrapCall(s string, fn string) (string, bool, error) {
	if !strings.HasPrefix(s, fn) {
		return "", false, nil
	}
	rest := strings.TrimLeftFunc(s[len(fn):], unicode.IsSpace)
	if !strings.HasPrefix(rest, "(") {
		return "", false, nil
	}
	offset := len(s) - len(rest)
	closeIdx, err := matchParen(s, offset)
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(s[closeIdx+1:]) != "" {
		return "", false, nil
	}
	return s[offset+1 : closeIdx], true, nil
}

// matchParen returns the index of the parenthesis closing the one at open,
// skipping over quoted strings and nested brackets.
func matchParen(s string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if c != ')' {
					return 0, ErrUnbalancedParen
				}
				return i, nil
			}
			if depth < 0 {
				return 0, ErrUnbalancedParen
			}
		}
	}
	return 0, ErrUnbalancedParen
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && (unicode.IsDigit(r) || r == '.' || r == '-')) {
			continue
		}
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// JSONCallGrammar accepts {"name": "...", "arguments": {...}} payloads.
// The arguments object is passed on verbatim as raw arguments.
type JSONCallGrammar struct{}

func (JSONCallGrammar) Split(payload string) (string, string, error) {
	s := strings.TrimSpace(payload)
	if s == "" {
		return "", "", ErrEmptyBlock
	}
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(s), &call); err != nil {
		return "", "", errors.Wrap(err, "invalid json tool call")
	}
	if call.Name == "" {
		return "", "", errors.Wrap(ErrNoCall, "missing name")
	}
	args := strings.TrimSpace(string(call.Arguments))
	if args == "null" {
		args = ""
	}
	return call.Name, args, nil
}

// GrammarByName maps a configuration value to a grammar.
func GrammarByName(name string) (CallGrammar, error) {
	switch name {
	case "", "python":
		return PythonCallGrammar{}, nil
	case "json":
		return JSONCallGrammar{}, nil
	default:
		return nil, errors.Errorf("unknown tool call grammar %q", name)
	}
}
