package toolcode

import (
	"bytes"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Scanner incrementally splits streamed model output into plain text and tool
// invocations. Every byte fed in is accounted for by exactly one emitted event.
//
// Outside a block, at most len(Start)-1 bytes are held back because they could
// be the beginning of a start marker (plus up to 3 bytes of an incomplete UTF-8
// sequence). Inside a block nothing is emitted until the end marker arrives.
// A start marker seen inside an open block is ordinary block content.
type Scanner struct {
	markers       Markers
	start         []byte
	end           []byte
	grammar       CallGrammar
	maxBlockBytes int

	buf    []byte
	offset int // stream offset of buf[0]

	open       bool
	searchFrom int

	warnings []Warning
	finished bool
}

type Option func(*Scanner)

func WithMarkers(m Markers) Option {
	return func(s *Scanner) {
		s.markers = m
	}
}

func WithGrammar(g CallGrammar) Option {
	return func(s *Scanner) {
		s.grammar = g
	}
}

// WithMaxBlockBytes treats a block that is not closed within n bytes (markers
// included) as plain text. The first n bytes are flushed and scanning resumes.
// Zero disables the limit.
func WithMaxBlockBytes(n int) Option {
	return func(s *Scanner) {
		s.maxBlockBytes = n
	}
}

func NewScanner(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		markers: DefaultMarkers(),
		grammar: PythonCallGrammar{},
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.markers.Validate(); err != nil {
		return nil, err
	}
	if s.grammar == nil {
		s.grammar = PythonCallGrammar{}
	}
	s.start = []byte(s.markers.Start)
	s.end = []byte(s.markers.End)
	return s, nil
}

func (s *Scanner) Markers() Markers {
	return s.markers
}

// Reset prepares the scanner for a new stream.
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
	s.offset = 0
	s.open = false
	s.searchFrom = 0
	s.warnings = nil
	s.finished = false
}

// Warnings returns the warnings recorded since the last Reset.
func (s *Scanner) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

// Feed appends a delta and returns the events that became unambiguous.
func (s *Scanner) Feed(delta string) []ScanEvent {
	if s.finished {
		log.Warn().Str("component", "toolcode.scanner").Msg("Feed called after Finish, resetting")
		s.Reset()
	}
	s.buf = append(s.buf, delta...)

	var out []ScanEvent
	for {
		if !s.open {
			idx := bytes.Index(s.buf, s.start)
			if idx >= 0 {
				if idx > 0 {
					out = append(out, s.takePlain(idx))
				}
				s.open = true
				s.searchFrom = len(s.start)
				log.Trace().Str("component", "toolcode.scanner").Int("offset", s.offset).Msg("block opened")
				continue
			}

			n := len(s.buf) - partialPrefixSuffix(s.buf, s.start)
			n = completeRunePrefix(s.buf, n)
			if n > 0 {
				out = append(out, s.takePlain(n))
			}
			return out
		}

		rel := bytes.Index(s.buf[s.searchFrom:], s.end)
		if rel >= 0 && !s.oversized(s.searchFrom+rel+len(s.end)) {
			out = append(out, s.takeInvocation(s.searchFrom+rel+len(s.end)))
			s.open = false
			continue
		}

		// the size decision only looks at the first maxBlockBytes bytes, so it
		// does not depend on how the stream was chunked
		if rel >= 0 || s.oversized(len(s.buf)+1) {
			s.warn("tool block exceeded maximum size, emitted as text")
			n := completeRunePrefix(s.buf, s.maxBlockBytes)
			if n <= 0 {
				n = s.maxBlockBytes
			}
			out = append(out, s.takePlain(n))
			s.open = false
			continue
		}

		// the end marker can only start in the last len(end)-1 bytes seen so far
		next := len(s.buf) - len(s.end) + 1
		if next > s.searchFrom {
			s.searchFrom = next
		}
		return out
	}
}

// oversized reports whether a block of n bytes is over the size limit.
func (s *Scanner) oversized(n int) bool {
	return s.maxBlockBytes > 0 && n > s.maxBlockBytes
}

// Finish flushes whatever is buffered at the end of the stream. An unterminated
// block is returned as plain text and recorded as a warning.
func (s *Scanner) Finish() []ScanEvent {
	if s.finished {
		return nil
	}
	s.finished = true
	if len(s.buf) == 0 {
		s.open = false
		return nil
	}
	if s.open {
		s.warn("unterminated tool block at end of stream, emitted as text")
		s.open = false
	}
	return []ScanEvent{s.takePlain(len(s.buf))}
}

func (s *Scanner) takePlain(n int) ScanEvent {
	ev := PlainText(string(s.buf[:n]))
	s.advance(n)
	return ev
}

func (s *Scanner) takeInvocation(n int) ScanEvent {
	raw := string(s.buf[:n])
	payload := raw[len(s.start) : len(raw)-len(s.end)]
	inv := Invocation{
		Raw:  raw,
		Span: Span{Start: s.offset, End: s.offset + n},
	}
	name, args, err := s.grammar.Split(payload)
	if err != nil {
		inv.RawArgs = payload
		inv.SplitError = err.Error()
		log.Debug().
			Str("component", "toolcode.scanner").
			Err(err).
			Str("payload", payload).
			Msg("could not split tool block")
	} else {
		inv.Name = name
		inv.RawArgs = args
	}
	log.Debug().
		Str("component", "toolcode.scanner").
		Str("tool", inv.Name).
		Int("start", inv.Span.Start).
		Int("end", inv.Span.End).
		Msg("tool invocation recognized")
	s.advance(n)
	return ToolInvocation(inv)
}

func (s *Scanner) advance(n int) {
	s.offset += n
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
	s.searchFrom = 0
}

func (s *Scanner) warn(msg string) {
	w := Warning{Offset: s.offset, Message: msg}
	s.warnings = append(s.warnings, w)
	log.Warn().Str("component", "toolcode.scanner").Int("offset", w.Offset).Msg(msg)
}

// partialPrefixSuffix returns the length of the longest proper prefix of marker
// that is a suffix of buf.
func partialPrefixSuffix(buf, marker []byte) int {
	max := len(marker) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for k := max; k > 0; k-- {
		if bytes.Equal(buf[len(buf)-k:], marker[:k]) {
			return k
		}
	}
	return 0
}

// completeRunePrefix shrinks n so that buf[:n] does not end in the middle of a
// UTF-8 sequence.
func completeRunePrefix(buf []byte, n int) int {
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		if !utf8.RuneStart(buf[n-i]) {
			continue
		}
		if !utf8.FullRune(buf[n-i : n]) {
			return n - i
		}
		return n
	}
	return n
}
