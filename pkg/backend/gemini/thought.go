package gemini

import "strings"

const (
	thoughtOpen  = "<thought>"
	thoughtClose = "</thought>"
)

// ThoughtFilter removes <thought>...</thought> sections from a stream of
// deltas. Tags may be split across deltas; a possible tag prefix at the end of
// a delta is held back until the next one arrives.
type ThoughtFilter struct {
	inThought bool
	pending   string
}

func (f *ThoughtFilter) Feed(delta string) string {
	buf := f.pending + delta
	f.pending = ""

	var out strings.Builder
	for len(buf) > 0 {
		tag := thoughtOpen
		if f.inThought {
			tag = thoughtClose
		}
		idx := strings.Index(buf, tag)
		if idx >= 0 {
			if !f.inThought {
				out.WriteString(buf[:idx])
			}
			buf = buf[idx+len(tag):]
			f.inThought = !f.inThought
			continue
		}

		keep := partialTagSuffix(buf, tag)
		if !f.inThought {
			out.WriteString(buf[:len(buf)-keep])
		}
		f.pending = buf[len(buf)-keep:]
		break
	}
	return out.String()
}

// Flush returns held-back text once the stream has ended. An unterminated
// thought section is dropped.
func (f *ThoughtFilter) Flush() string {
	rest := f.pending
	f.pending = ""
	if f.inThought {
		return ""
	}
	return rest
}

// partialTagSuffix is the length of the longest suffix of s that is a proper
// prefix of tag.
func partialTagSuffix(s, tag string) int {
	n := len(tag) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
