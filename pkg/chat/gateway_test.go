package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
)

func startGateway(t *testing.T, p *fakeProvider) (*bus.MessageBus, *Gateway, *[]auth.User) {
	t.Helper()
	mb := bus.NewMessageBus()
	var mu sync.Mutex
	var users []auth.User
	gw := NewGateway(mb, func(u auth.User) (*Orchestrator, error) {
		mu.Lock()
		users = append(users, u)
		mu.Unlock()
		session := auth.NewSession()
		session.SignIn(u)
		return New(Options{Provider: p, User: session, RetryDelay: time.Millisecond})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gw.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		mb.Close()
	})
	return mb, gw, &users
}

func nextOutbound(t *testing.T, mb *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := mb.SubscribeOutbound(ctx)
	require.True(t, ok, "expected an outbound message")
	return msg
}

func TestGateway_RepliesOnSameChat(t *testing.T) {
	p := newFakeProvider()
	p.reply = "pong"
	mb, gw, users := startGateway(t, p)

	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "42", SenderName: "kim", Content: "ping"})

	out := nextOutbound(t, mb)
	assert.Equal(t, "discord", out.Channel)
	assert.Equal(t, "c1", out.ChatID)
	assert.Equal(t, "pong", out.Content)
	assert.False(t, out.IsError)
	assert.Equal(t, 1, gw.Sessions())
	require.Len(t, *users, 1)
	assert.Equal(t, "discord:42", (*users)[0].UID)
}

func TestGateway_ModelFailureIsErrorReply(t *testing.T) {
	p := newFakeProvider()
	p.replyErr = errors.New("boom")
	mb, _, _ := startGateway(t, p)

	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "42", Content: "ping"})

	out := nextOutbound(t, mb)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "boom")
}

func TestGateway_NewCommandResetsSession(t *testing.T) {
	p := newFakeProvider()
	mb, gw, _ := startGateway(t, p)

	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "42", Content: "hello"})
	nextOutbound(t, mb)
	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "42", Content: "/new"})
	out := nextOutbound(t, mb)
	assert.Equal(t, "Started a new conversation.", out.Content)

	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "42", Content: "again"})
	nextOutbound(t, mb)
	assert.Len(t, p.lastTurn().Messages, 1, "history was cleared by /new")
	assert.Equal(t, 1, gw.Sessions())
}

func TestGateway_SeparateSendersGetSeparateSessions(t *testing.T) {
	p := newFakeProvider()
	mb, gw, _ := startGateway(t, p)

	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "1", Content: "a"})
	nextOutbound(t, mb)
	mb.PublishInbound(bus.InboundMessage{Channel: "discord", ChatID: "c1", SenderID: "2", Content: "b"})
	nextOutbound(t, mb)

	assert.Equal(t, 2, gw.Sessions())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("notes"))
	}))
	defer srv.Close()

	fetch := HTTPFetcher(srv.Client())
	att, err := fetch(context.Background(), bus.Attachment{Name: "notes.txt", URL: srv.URL + "/notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "notes", string(att.Data))
	assert.Equal(t, "text/plain", att.ContentType)

	_, err = fetch(context.Background(), bus.Attachment{Name: "gone", URL: srv.URL + "/missing"})
	assert.Error(t, err)
}
