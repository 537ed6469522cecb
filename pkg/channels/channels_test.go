package channels

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	open := NewBaseChannel("discord", bus.NewMessageBus(), nil)
	assert.True(t, open.IsAllowed("anyone"))

	c := NewBaseChannel("discord", bus.NewMessageBus(), []string{"123", "@alice"})
	assert.True(t, c.IsAllowed("123"))
	assert.True(t, c.IsAllowed("123|bob"))
	assert.True(t, c.IsAllowed("999|alice"))
	assert.False(t, c.IsAllowed("999|bob"))
}

func TestBaseChannel_HandleMessagePublishes(t *testing.T) {
	mb := bus.NewMessageBus()
	c := NewBaseChannel("discord", mb, []string{"1"})

	assert.False(t, c.HandleMessage("2", "eve", "chat", "hi", nil, nil))
	require.True(t, c.HandleMessage("1", "kim", "chat", "hi", []bus.Attachment{{Name: "a.png", URL: "https://x/a.png"}}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "discord", msg.Channel)
	assert.Equal(t, "kim", msg.SenderName)
	assert.Len(t, msg.Attachments, 1)
}

func TestSplitMessage_Short(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitMessage("  hello \n", 100))
	assert.Nil(t, splitMessage("   ", 100))
}

func TestSplitMessage_RespectsLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("안녕하세요 여러분 반갑습니다\n")
	}
	content := b.String()

	chunks := splitMessage(content, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
	}
	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
	assert.Equal(t, strip(content), strip(strings.Join(chunks, "")))
}

func TestSplitMessage_LongLineWithoutSpaces(t *testing.T) {
	content := strings.Repeat("x", 250)
	chunks := splitMessage(content, 100)
	require.Len(t, chunks, 3)
	assert.Equal(t, content, strings.Join(chunks, ""))
}

func TestSplitMessage_ReopensCodeBlocks(t *testing.T) {
	var b strings.Builder
	b.WriteString("intro\n```go\n")
	for i := 0; i < 40; i++ {
		b.WriteString("fmt.Println(i)\n")
	}
	b.WriteString("```\noutro")

	chunks := splitMessage(b.String(), 120)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, 0, strings.Count(c, fenceMarker)%2, "chunk %d has an unbalanced fence: %q", i, c)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120)
	}
	assert.True(t, strings.HasPrefix(chunks[1], "```go\n"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "outro"))
}

func TestImagePayload(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	payload, err := imagePayload([]string{"https://img.example/a.png", "data:image/png;base64," + data})
	require.NoError(t, err)
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "https://img.example/a.png", payload.Embeds[0].Image.URL)
	require.Len(t, payload.Files, 1)
	assert.Equal(t, "image/png", payload.Files[0].ContentType)
	assert.True(t, strings.HasPrefix(payload.Files[0].Name, "image-2"))

	_, err = imagePayload([]string{"data:image/png,plain"})
	assert.Error(t, err)
}

func TestInboundAttachments(t *testing.T) {
	got := inboundAttachments([]*discordgo.MessageAttachment{
		nil,
		{Filename: "a.txt", URL: "https://cdn/a.txt", ContentType: "text/plain"},
		{Filename: "empty"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, bus.Attachment{Name: "a.txt", URL: "https://cdn/a.txt", ContentType: "text/plain"}, got[0])
}

type fakeChannel struct {
	*BaseChannel
	startErr error

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func newFakeChannel(name string, mb *bus.MessageBus) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, mb, nil)}
}

func (f *fakeChannel) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.setRunning(true)
	return nil
}

func (f *fakeChannel) Stop(context.Context) error {
	f.setRunning(false)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestManager_DispatchesOutbound(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	ch := newFakeChannel("discord", mb)
	m.RegisterChannel(ch)

	require.NoError(t, m.StartAll(context.Background()))
	assert.Equal(t, map[string]bool{"discord": true}, m.Status())

	mb.PublishOutbound(bus.OutboundMessage{Channel: "nowhere", ChatID: "c", Content: "lost"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "c", Content: "hi"})
	assert.Eventually(t, func() bool { return ch.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll(context.Background()))
	assert.False(t, ch.IsRunning())
}

func TestManager_StartFailureStopsStarted(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	good := newFakeChannel("good", mb)
	bad := newFakeChannel("bad", mb)
	bad.startErr = errors.New("no token")
	m.RegisterChannel(good)
	m.RegisterChannel(bad)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: no token")
	assert.False(t, good.IsRunning())
	assert.Equal(t, []string{"bad", "good"}, m.EnabledChannels())
}
