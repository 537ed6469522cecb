package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_StripsParticles(t *testing.T) {
	tok := NewTokenizer()

	assert.Equal(t, []string{"나", "사과", "좋아해"}, tok.Tokenize("나는 사과를 좋아해"))
	assert.Equal(t, []string{"술", "하지마"}, tok.Tokenize("술은 하지마!"))
}

func TestTokenizer_SplitsOnPunctuationAndLowercases(t *testing.T) {
	tok := NewTokenizer()

	assert.Equal(t, []string{"hello", "world"}, tok.Words("Hello,   World!"))
	assert.Empty(t, tok.Tokenize("  ...  "))
}

func TestTokenizer_DropsBareParticles(t *testing.T) {
	tok := NewTokenizer()

	assert.Equal(t, []string{"사과"}, tok.Tokenize("의 사과를"))
}

func TestTokenizer_FirstMatchingParticleWins(t *testing.T) {
	tok := NewTokenizer("로", "으로")

	// "로" is listed first so "으로" never gets the chance to match.
	assert.Equal(t, "집으", tok.StripParticle("집으로"))
	assert.Equal(t, "집", NewTokenizer().StripParticle("집으로"))
}

func TestTokenizer_IsRestartable(t *testing.T) {
	tok := NewTokenizer()
	first := tok.Tokenize("커피를 좋아해요")
	second := tok.Tokenize("커피를 좋아해요")
	assert.Equal(t, first, second)
}
