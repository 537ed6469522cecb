package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

const (
	maxAttachmentBytes = 20 << 20
	sessionInboxSize   = 16
	newConversationCmd = "/new"
)

// AttachmentFetcher downloads an inbound attachment.
type AttachmentFetcher func(ctx context.Context, a bus.Attachment) (Attachment, error)

// SessionFactory builds the orchestrator for a gateway user.
type SessionFactory func(user auth.User) (*Orchestrator, error)

// Gateway routes bus traffic to one Orchestrator per session. Messages of a
// session are handled in arrival order; sessions run concurrently.
type Gateway struct {
	bus     *bus.MessageBus
	factory SessionFactory
	fetch   AttachmentFetcher

	mu       sync.Mutex
	sessions map[string]*gatewaySession
	wg       sync.WaitGroup
}

type gatewaySession struct {
	orch  *Orchestrator
	inbox chan bus.InboundMessage
}

func NewGateway(mb *bus.MessageBus, factory SessionFactory) *Gateway {
	return &Gateway{
		bus:      mb,
		factory:  factory,
		fetch:    HTTPFetcher(&http.Client{Timeout: 30 * time.Second}),
		sessions: make(map[string]*gatewaySession),
	}
}

func (g *Gateway) SetFetcher(f AttachmentFetcher) {
	g.fetch = f
}

// Run consumes inbound messages until ctx is done or the bus is closed, then
// waits for in-flight turns and closes every session.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.shutdown()
	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		if err := g.dispatch(ctx, msg); err != nil {
			logger.WarnCF("gateway", "Dropped inbound message", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

// Sessions reports the number of live sessions.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) dispatch(ctx context.Context, msg bus.InboundMessage) error {
	id := SessionIdentity{Channel: msg.Channel, ChatID: msg.ChatID, SenderID: msg.SenderID}
	key, err := resolveSessionKey(msg.SessionKey, id)
	if err != nil {
		return err
	}
	sess, err := g.session(ctx, key, id, msg.SenderName)
	if err != nil {
		return err
	}
	select {
	case sess.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) session(ctx context.Context, key string, id SessionIdentity, name string) (*gatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sess, ok := g.sessions[key]; ok {
		return sess, nil
	}

	uid := id.UserID()
	if id.SenderID == "" {
		uid = key
	}
	orch, err := g.factory(auth.User{UID: uid, DisplayName: name})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess := &gatewaySession{orch: orch, inbox: make(chan bus.InboundMessage, sessionInboxSize)}
	g.sessions[key] = sess
	logger.InfoCF("gateway", "Session started", map[string]any{"session": key, "user": uid})

	g.wg.Add(1)
	go g.serve(ctx, sess)
	return sess, nil
}

func (g *Gateway) serve(ctx context.Context, sess *gatewaySession) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.inbox:
			if !ok {
				return
			}
			g.handle(ctx, sess.orch, msg)
		}
	}
}

func (g *Gateway) handle(ctx context.Context, orch *Orchestrator, msg bus.InboundMessage) {
	content := strings.TrimSpace(msg.Content)
	if content == newConversationCmd {
		if err := orch.NewConversation(ctx); err != nil {
			g.reply(msg, "Could not start a new conversation: "+err.Error(), nil, true)
			return
		}
		g.reply(msg, "Started a new conversation.", nil, false)
		return
	}

	attachments := make([]Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		att, err := g.fetch(ctx, a)
		if err != nil {
			logger.WarnCF("gateway", "Attachment download failed", map[string]any{
				"name":  a.Name,
				"error": err.Error(),
			})
			continue
		}
		attachments = append(attachments, att)
	}

	res, err := orch.Send(ctx, SendRequest{Prompt: content, Attachments: attachments}, nil)
	switch {
	case err != nil:
		g.reply(msg, "Error: "+err.Error(), nil, true)
	case res.Failed():
		g.reply(msg, "Error: "+res.Err.Error(), nil, true)
	default:
		g.reply(msg, res.Reply, res.ImageURLs, false)
	}
}

func (g *Gateway) reply(msg bus.InboundMessage, content string, images []string, isError bool) {
	g.bus.PublishOutbound(bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   content,
		ImageURLs: images,
		IsError:   isError,
	})
}

func (g *Gateway) shutdown() {
	g.mu.Lock()
	for _, sess := range g.sessions {
		close(sess.inbox)
	}
	g.mu.Unlock()

	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, sess := range g.sessions {
		sess.orch.Close()
		delete(g.sessions, key)
	}
}

// HTTPFetcher downloads attachments with client, capping their size.
func HTTPFetcher(client *http.Client) AttachmentFetcher {
	return func(ctx context.Context, a bus.Attachment) (Attachment, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
		if err != nil {
			return Attachment{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return Attachment{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return Attachment{}, fmt.Errorf("download %s: status %d", a.Name, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
		if err != nil {
			return Attachment{}, err
		}
		if len(data) > maxAttachmentBytes {
			return Attachment{}, fmt.Errorf("download %s: larger than %d bytes", a.Name, maxAttachmentBytes)
		}

		contentType := a.ContentType
		if contentType == "" {
			contentType = resp.Header.Get("Content-Type")
		}
		return Attachment{Name: a.Name, ContentType: contentType, Data: data}, nil
	}
}
