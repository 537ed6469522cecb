package channels

import (
	"strings"
	"unicode/utf8"
)

const (
	fenceMarker   = "```"
	maxFenceLabel = 20
	minSplitLimit = 64
)

// splitMessage breaks content into chunks of at most limit runes, preferring
// line and then word boundaries. A code block open at a split is closed at
// the end of the chunk and reopened at the start of the next one.
func splitMessage(content string, limit int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if limit < minSplitLimit {
		limit = minSplitLimit
	}
	if utf8.RuneCountInString(content) <= limit {
		return []string{content}
	}

	s := &splitter{budget: limit - len(fenceMarker) - 1}
	for _, line := range strings.SplitAfter(content, "\n") {
		s.add(line)
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, fenceMarker) {
			continue
		}
		if s.fence != "" {
			s.fence = ""
		} else if utf8.RuneCountInString(trimmed) > maxFenceLabel {
			s.fence = fenceMarker
		} else {
			s.fence = trimmed
		}
	}
	s.flush()
	return s.chunks
}

type splitter struct {
	budget int
	chunks []string

	cur    strings.Builder
	n      int
	header string
	fence  string
}

func (s *splitter) add(line string) {
	base := utf8.RuneCountInString(s.header)
	for line != "" {
		n := utf8.RuneCountInString(line)
		if s.n+n <= s.budget {
			s.cur.WriteString(line)
			s.n += n
			return
		}
		if s.n > base && base+n <= s.budget {
			s.flush()
			base = s.n
			continue
		}

		room := s.budget - s.n
		head, tail := cutRunes(line, room)
		s.cur.WriteString(head)
		s.n += utf8.RuneCountInString(head)
		s.flush()
		base = s.n
		line = tail
	}
}

func (s *splitter) flush() {
	raw := s.cur.String()
	if strings.TrimSpace(strings.TrimPrefix(raw, s.header)) != "" {
		text := strings.TrimRight(raw, " \t\n")
		if s.fence != "" {
			text += "\n" + fenceMarker
		}
		s.chunks = append(s.chunks, text)
	}

	s.cur.Reset()
	s.header = ""
	if s.fence != "" {
		s.header = s.fence + "\n"
	}
	s.cur.WriteString(s.header)
	s.n = utf8.RuneCountInString(s.header)
}

// cutRunes splits s after at most n runes, backing up to the last space when
// one falls in the second half.
func cutRunes(s string, n int) (string, string) {
	r := []rune(s)
	if n >= len(r) {
		return s, ""
	}
	for i := n - 1; i > n/2; i-- {
		if r[i] == ' ' || r[i] == '\t' {
			return string(r[:i+1]), string(r[i+1:])
		}
	}
	return string(r[:n]), string(r[n:])
}
