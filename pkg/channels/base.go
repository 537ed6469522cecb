// Package channels connects chat front ends to the message bus.
package channels

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel carries the allow list and bus plumbing shared by channels.
type BaseChannel struct {
	bus       *bus.MessageBus
	name      string
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, mb *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       mb,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed accepts everyone when the allow list is empty. Entries match the
// sender id, or either half of a compound "id|username" sender.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}
	return false
}

// HandleMessage publishes an inbound message from an allowed sender.
func (c *BaseChannel) HandleMessage(senderID, senderName, chatID, content string, attachments []bus.Attachment, metadata map[string]string) bool {
	if !c.IsAllowed(senderID) {
		return false
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		SenderName:  senderName,
		ChatID:      chatID,
		Content:     content,
		Attachments: attachments,
		SessionKey:  fmt.Sprintf("%s:%s:%s", c.name, chatID, senderID),
		Metadata:    metadata,
	})
	return true
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
