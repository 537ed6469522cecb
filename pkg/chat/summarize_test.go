package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traeumen927/chatGPT-sub000/pkg/conversation"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
)

func TestSummarize_IncludesExistingSummary(t *testing.T) {
	p := newFakeProvider()
	p.summary = "  merged  "
	out, err := summarize(context.Background(), p, "gpt-4o-mini", "old", []conversation.Message{
		{Role: conversation.RoleUser, Content: "q"},
	})
	require.NoError(t, err)
	assert.Equal(t, "merged", out)
}

func TestSummarize_EmptyReplyFails(t *testing.T) {
	p := newFakeProvider()
	p.summary = " "
	_, err := summarize(context.Background(), p, "m", "", nil)
	assert.ErrorIs(t, err, ErrSummarizationFailed)
}

func TestGenerateTitle(t *testing.T) {
	p := newFakeProvider()
	p.title = "\"Apple facts\"\nextra"
	title, err := generateTitle(context.Background(), p, "m", "tell me about apples", "sure")
	require.NoError(t, err)
	assert.Equal(t, "Apple facts", title)
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, "New conversation", fallbackTitle("   "))
	assert.Equal(t, "hello world", fallbackTitle("hello\n  world"))
	long := fallbackTitle("가나다라마바사아자차카타파하가나다라마바사아자차카타파하가나다라마바사아자차카타파하")
	assert.Len(t, []rune(long), titleMaxRunes)
}

func TestGenerateTitle_FallsBackOnError(t *testing.T) {
	title, err := generateTitle(context.Background(), errProvider{newFakeProvider()}, "m", "what is go", "a language")
	assert.Error(t, err)
	assert.Equal(t, "what is go", title)
}

type errProvider struct{ *fakeProvider }

func (errProvider) Chat(context.Context, providers.ChatRequest) (string, error) {
	return "", errors.New("down")
}
