package toolcode

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Args is the structural parse of a call's argument list.
type Args struct {
	Positional []interface{}
	Keyword    map[string]interface{}
	// Order lists keyword names in the order they appeared.
	Order []string
}

// ParseArgs parses a Python-style argument list such as
//
//	city="Paris", days=3, units=None, tags=["a", 'b'], opts={"x": 1.5}
//
// A payload that is a single JSON object is read as keyword arguments.
func ParseArgs(raw string) (*Args, error) {
	ret := &Args{Keyword: map[string]interface{}{}}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ret, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]interface{}
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&obj); err == nil && !dec.More() {
			for k, v := range obj {
				ret.Keyword[k] = normalizeJSONNumber(v)
			}
			ret.Order = sortedKeys(obj)
			return ret, nil
		}
	}

	p := &argParser{src: raw}
	for {
		p.skipSpace()
		if p.eof() {
			break
		}

		if name, ok := p.keyword(); ok {
			if _, dup := ret.Keyword[name]; dup {
				return nil, p.errorf("duplicate keyword argument %q", name)
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			ret.Keyword[name] = v
			ret.Order = append(ret.Order, name)
		} else {
			if len(ret.Order) > 0 {
				return nil, p.errorf("positional argument follows keyword argument")
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			ret.Positional = append(ret.Positional, v)
		}

		p.skipSpace()
		if p.eof() {
			break
		}
		if !p.consume(',') {
			return nil, p.errorf("expected ',' got %q", p.peek())
		}
	}
	return ret, nil
}

type argParser struct {
	src string
	pos int
}

func (p *argParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *argParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *argParser) consume(c byte) bool {
	if p.peek() == c && !p.eof() {
		p.pos++
		return true
	}
	return false
}

func (p *argParser) skipSpace() {
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *argParser) errorf(format string, args ...interface{}) error {
	return errors.Errorf("at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *argParser) identifier() string {
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if r == '_' || unicode.IsLetter(r) || (p.pos > start && unicode.IsDigit(r)) {
			p.pos += size
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

// keyword consumes `name =` if present, leaving the parser untouched otherwise.
func (p *argParser) keyword() (string, bool) {
	save := p.pos
	name := p.identifier()
	if name == "" {
		return "", false
	}
	p.skipSpace()
	if p.peek() == '=' && (p.pos+1 >= len(p.src) || p.src[p.pos+1] != '=') {
		p.pos++
		p.skipSpace()
		return name, true
	}
	p.pos = save
	return "", false
}

func (p *argParser) value() (interface{}, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of arguments")
	}
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.str()
	case c == '[':
		p.pos++
		return p.sequence(']')
	case c == '(':
		p.pos++
		return p.sequence(')')
	case c == '{':
		p.pos++
		return p.dict()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		save := p.pos
		word := p.identifier()
		switch word {
		case "True", "true":
			return true, nil
		case "False", "false":
			return false, nil
		case "None", "null", "nil":
			return nil, nil
		case "r", "R":
			if q := p.peek(); q == '"' || q == '\'' {
				return p.rawStr()
			}
		}
		p.pos = save
		if word == "" {
			return nil, p.errorf("unexpected character %q", c)
		}
		return nil, p.errorf("unsupported expression %q", word)
	}
}

func (p *argParser) sequence(closing byte) (interface{}, error) {
	ret := []interface{}{}
	for {
		p.skipSpace()
		if p.consume(closing) {
			return ret, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(closing) {
			return ret, nil
		}
		return nil, p.errorf("expected ',' or %q", closing)
	}
}

func (p *argParser) dict() (interface{}, error) {
	ret := map[string]interface{}{}
	for {
		p.skipSpace()
		if p.consume('}') {
			return ret, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(':') {
			return nil, p.errorf("expected ':' in dict")
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			key = fmt.Sprint(k)
		}
		ret[key] = v
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return ret, nil
		}
		return nil, p.errorf("expected ',' or '}' in dict")
	}
}

func (p *argParser) number() (interface{}, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '_' || c == 'x' || c == 'X' ||
			(c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') ||
			((c == '-' || c == '+') && (p.pos == start || p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	lit := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if i, err := strconv.ParseInt(lit, 0, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return f, nil
	}
	return nil, errors.Errorf("at offset %d: invalid number %q", start, lit)
}

func (p *argParser) str() (interface{}, error) {
	quote := p.peek()
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var sb strings.Builder
	for {
		if p.eof() {
			return nil, p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == '\\':
			if err := p.escape(&sb); err != nil {
				return nil, err
			}
			continue
		case c == quote && triple:
			if strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)) {
				p.pos += 3
				return sb.String(), nil
			}
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\n' && !triple:
			return nil, p.errorf("newline in string literal")
		}
		sb.WriteByte(c)
		p.pos++
	}
}

func (p *argParser) rawStr() (interface{}, error) {
	quote := p.peek()
	p.pos++
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\\' {
			p.pos += 2
			continue
		}
		if c == quote {
			s := p.src[start:p.pos]
			p.pos++
			return s, nil
		}
		p.pos++
	}
	return nil, p.errorf("unterminated string")
}

func (p *argParser) escape(sb *strings.Builder) error {
	p.pos++
	if p.eof() {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case '\n':
		// line continuation
	case 'x', 'u', 'U':
		n := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+n > len(p.src) {
			return p.errorf("short \\%c escape", c)
		}
		v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
		if err != nil {
			return p.errorf("invalid \\%c escape", c)
		}
		p.pos += n
		sb.WriteRune(rune(v))
	default:
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func normalizeJSONNumber(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []interface{}:
		for i := range t {
			t[i] = normalizeJSONNumber(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = normalizeJSONNumber(t[k])
		}
		return t
	default:
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
