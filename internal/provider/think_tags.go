package provider

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkTagSplitter splits inline <think>...</think> reasoning out of plain
// content deltas for OpenAI-compatible endpoints that don't expose a
// separate reasoning field (some local/self-hosted models emit the tag
// inline instead). It is chunk-boundary-safe: a tag split across two
// stream deltas is buffered until it can be resolved one way or the other.
type thinkTagSplitter struct {
	inThink bool
	pending string // tail bytes that might be a partial tag, held back from emission
}

// feed consumes one content delta and returns the text and reasoning
// portions to emit for it. Either return value may be empty.
func (s *thinkTagSplitter) feed(chunk string) (text, reasoning string) {
	buf := s.pending + chunk
	s.pending = ""

	for {
		tag := thinkCloseTag
		if !s.inThink {
			tag = thinkOpenTag
		}

		idx := strings.Index(buf, tag)
		if idx >= 0 {
			if s.inThink {
				reasoning += buf[:idx]
			} else {
				text += buf[:idx]
			}
			buf = buf[idx+len(tag):]
			s.inThink = !s.inThink
			continue
		}

		// No complete tag in the remaining buffer. Hold back a suffix that
		// could be the start of the tag we're looking for, emit the rest.
		holdback := partialTagSuffixLen(buf, tag)
		emit := buf[:len(buf)-holdback]
		if s.inThink {
			reasoning += emit
		} else {
			text += emit
		}
		s.pending = buf[len(buf)-holdback:]
		return text, reasoning
	}
}

// partialTagSuffixLen returns the length of the longest suffix of buf that
// is a proper (non-empty, non-total) prefix of tag, i.e. could still grow
// into a full match once more bytes arrive.
func partialTagSuffixLen(buf, tag string) int {
	max := len(tag) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(buf, tag[:n]) {
			return n
		}
	}
	return 0
}

// flush returns any buffered bytes that never resolved into a tag, to be
// emitted as plain text (or reasoning, if a close tag never arrived) once
// the stream ends.
func (s *thinkTagSplitter) flush() (text, reasoning string) {
	if s.pending == "" {
		return "", ""
	}
	if s.inThink {
		reasoning = s.pending
	} else {
		text = s.pending
	}
	s.pending = ""
	return text, reasoning
}
