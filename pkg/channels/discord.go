package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second
	// Discord rejects messages over 2000 characters.
	discordMessageLimit = 1900
)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session

	typingMu sync.Mutex
	typing   map[string]*typingSession
}

type typingSession struct {
	pending int
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, mb *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, cfg.AllowFrom),
		session:     session,
		typing:      make(map[string]*typingSession),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

// Send delivers a reply: the text split into chunks, then any images as
// embeds (remote URLs) or uploaded files (data URIs).
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("channel ID is empty")
	}
	defer c.endTyping(msg.ChatID)

	content := msg.Content
	if msg.IsError {
		content = "⚠️ " + content
	}
	for _, chunk := range splitMessage(content, discordMessageLimit) {
		if err := c.send(ctx, msg.ChatID, &discordgo.MessageSend{Content: chunk}); err != nil {
			return err
		}
	}

	if len(msg.ImageURLs) == 0 {
		return nil
	}
	payload, err := imagePayload(msg.ImageURLs)
	if err != nil {
		return err
	}
	return c.send(ctx, msg.ChatID, payload)
}

// imagePayload turns image URLs into a single message.
func imagePayload(urls []string) (*discordgo.MessageSend, error) {
	out := &discordgo.MessageSend{}
	for i, u := range urls {
		if !strings.HasPrefix(u, "data:") {
			out.Embeds = append(out.Embeds, &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: u}})
			continue
		}
		contentType, data, err := decodeDataURI(u)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		ext := ".png"
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
		out.Files = append(out.Files, &discordgo.File{
			Name:        fmt.Sprintf("image-%d%s", i+1, ext),
			ContentType: contentType,
			Reader:      bytes.NewReader(data),
		})
	}
	return out, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("unsupported data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

func (c *DiscordChannel) send(ctx context.Context, channelID string, data *discordgo.MessageSend) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSendComplex(channelID, data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.WarnCF("discord", "Failed to send typing indicator", map[string]any{"error": err.Error()})
	}
}

// beginTyping keeps the typing indicator alive until a matching endTyping.
func (c *DiscordChannel) beginTyping(channelID string) {
	c.typingMu.Lock()
	if sess, ok := c.typing[channelID]; ok {
		sess.pending++
		c.typingMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.typing[channelID] = &typingSession{pending: 1, cancel: cancel}
	c.typingMu.Unlock()

	c.sendTyping(channelID)
	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsRunning() {
					return
				}
				c.sendTyping(channelID)
			}
		}
	}()
}

func (c *DiscordChannel) endTyping(channelID string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	sess.pending--
	if sess.pending > 0 {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	for channelID, sess := range c.typing {
		sess.cancel()
		delete(c.typing, channelID)
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{"user_id": m.Author.ID})
		return
	}

	attachments := inboundAttachments(m.Attachments)
	if strings.TrimSpace(m.Content) == "" && len(attachments) == 0 {
		return
	}

	senderName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		senderName += "#" + m.Author.Discriminator
	}
	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id":   m.Author.ID,
		"sender_name": senderName,
		"attachments": len(attachments),
	})

	metadata := map[string]string{
		"message_id": m.ID,
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
	}
	if c.HandleMessage(m.Author.ID, senderName, m.ChannelID, m.Content, attachments, metadata) {
		c.beginTyping(m.ChannelID)
	}
}

func inboundAttachments(in []*discordgo.MessageAttachment) []bus.Attachment {
	out := make([]bus.Attachment, 0, len(in))
	for _, a := range in {
		if a == nil || a.URL == "" {
			continue
		}
		out = append(out, bus.Attachment{Name: a.Filename, URL: a.URL, ContentType: a.ContentType})
	}
	return out
}
