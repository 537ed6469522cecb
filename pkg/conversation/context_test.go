package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestContextManager_TrimKeepsMostRecentInOrder(t *testing.T) {
	m := NewContextManager()
	for i := 0; i < 25; i++ {
		m.Append(RoleUser, fmt.Sprintf("msg-%d", i))
	}

	m.Trim(10)

	msgs := m.Messages()
	require.Len(t, msgs, 10)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", 15+i), msg.Content)
	}
}

func TestContextManager_TrimIsIdempotent(t *testing.T) {
	m := NewContextManager()
	for i := 0; i < 12; i++ {
		m.Append(RoleAssistant, fmt.Sprintf("%d", i))
	}
	m.Trim(10)
	first := m.Messages()
	m.Trim(10)
	assert.Equal(t, first, m.Messages())
}

func TestContextManager_TrimProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(rt, "n")
		max := rapid.IntRange(0, 30).Draw(rt, "max")

		m := NewContextManager()
		for i := 0; i < n; i++ {
			m.Append(RoleUser, fmt.Sprintf("%d", i))
		}
		m.Trim(max)

		msgs := m.Messages()
		if len(msgs) > max {
			rt.Fatalf("len %d exceeds max %d", len(msgs), max)
		}
		want := n
		if want > max {
			want = max
		}
		if len(msgs) != want {
			rt.Fatalf("len %d, want %d", len(msgs), want)
		}
		for i, msg := range msgs {
			if msg.Content != fmt.Sprintf("%d", n-want+i) {
				rt.Fatalf("message %d out of order: %q", i, msg.Content)
			}
		}
	})
}

func TestContextManager_RequestPutsSummaryFirst(t *testing.T) {
	m := NewContextManager()
	m.Append(RoleUser, "hi")
	m.Append(RoleError, "boom")
	m.Append(RoleAssistant, "hello")
	m.UpdateSummary("talked about apples")

	req := m.Request()
	require.Len(t, req, 3)
	assert.Equal(t, RoleSystem, req[0].Role)
	assert.Equal(t, SummaryPrefix+"talked about apples", req[0].Content)
	assert.Equal(t, "hi", req[1].Content)
	assert.Equal(t, "hello", req[2].Content)
}

func TestContextManager_ClearAndReplace(t *testing.T) {
	m := NewContextManager()
	m.Append(RoleUser, "a")
	m.UpdateSummary("s")

	m.Clear()
	assert.Equal(t, 0, m.Len())
	_, ok := m.Summary()
	assert.False(t, ok)

	loaded := []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}
	m.Replace(loaded, "old summary")
	loaded[0].Content = "mutated"

	msgs := m.Messages()
	assert.Equal(t, "q", msgs[0].Content, "Replace must copy its input")
	summary, ok := m.Summary()
	assert.True(t, ok)
	assert.Equal(t, "old summary", summary)
}

func TestTranscript_SkipsSystemAndTruncates(t *testing.T) {
	out := Transcript([]Message{
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: "안녕하세요 반가워요"},
		{Role: RoleAssistant, Content: "ok"},
	}, 5)
	assert.Equal(t, "user: 안녕하세요...\nassistant: ok\n", out)
}

func TestContextManager_WindowKeepsSummaryAndTail(t *testing.T) {
	m := NewContextManager()
	for i := 0; i < 6; i++ {
		m.Append(RoleUser, fmt.Sprintf("m%d", i))
	}
	m.UpdateSummary("earlier")

	win := m.Window(2)
	if assert.Len(t, win, 3) {
		assert.Equal(t, RoleSystem, win[0].Role)
		assert.Equal(t, "m4", win[1].Content)
		assert.Equal(t, "m5", win[2].Content)
	}
	assert.Equal(t, 6, m.Len(), "Window must not trim the stored history")
	assert.Len(t, m.Window(50), 7)
}
