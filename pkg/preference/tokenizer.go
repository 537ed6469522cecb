package preference

import (
	"strings"
	"unicode"
)

// DefaultParticles are Korean postpositions stripped from the end of a word
// to recover the noun. Only the first suffix that matches, in list order, is
// removed, so compound particles come before the particles they end with.
var DefaultParticles = []string{
	"에게서", "에서", "에게", "한테", "께서", "으로", "이랑", "까지", "부터", "처럼",
	"은", "는", "이", "가", "을", "를", "에", "의", "와", "과", "도", "로", "랑", "께", "만",
}

// Tokenizer splits text into lowercase word tokens with trailing particles
// removed. It holds no mutable state and may be shared.
type Tokenizer struct {
	particles []string
}

func NewTokenizer(particles ...string) *Tokenizer {
	if len(particles) == 0 {
		particles = DefaultParticles
	}
	return &Tokenizer{particles: append([]string(nil), particles...)}
}

// Words splits text on anything that is not a letter or digit and lowercases
// the pieces.
func (t *Tokenizer) Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// Tokenize returns the normalized tokens of text. Words that are nothing but
// a particle are dropped.
func (t *Tokenizer) Tokenize(text string) []string {
	words := t.Words(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if tok := t.StripParticle(w); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// StripParticle removes the first matching particle suffix from word.
func (t *Tokenizer) StripParticle(word string) string {
	for _, p := range t.particles {
		if strings.HasSuffix(word, p) {
			return strings.TrimSuffix(word, p)
		}
	}
	return word
}
