// chatGPT - Personalized ChatGPT client that remembers preferences and profile facts
// Based on DotAgent and nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 chatGPT contributors

package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// Manager starts the configured channels and routes outbound replies to them.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewManager(mb *bus.MessageBus) *Manager {
	return &Manager{
		bus:      mb,
		channels: make(map[string]Channel),
	}
}

// NewManagerFromConfig registers every channel that has credentials in cfg.
func NewManagerFromConfig(cfg *config.Config, mb *bus.MessageBus) (*Manager, error) {
	m := NewManager(mb)
	logger.InfoC("channels", "Initializing channel manager")

	if strings.TrimSpace(cfg.Channels.Discord.Token) != "" {
		discord, err := NewDiscordChannel(cfg.Channels.Discord, mb)
		if err != nil {
			return nil, fmt.Errorf("initialize Discord channel: %w", err)
		}
		m.RegisterChannel(discord)
	}

	if len(m.channels) == 0 {
		return nil, fmt.Errorf("no channels configured: set channels.discord.token")
	}
	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": len(m.channels),
	})
	return m, nil
}

func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// StartAll starts every channel and the outbound dispatcher. If any channel
// fails, the ones already started are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	var started []Channel
	var startErrors []string
	for _, ch := range channels {
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": ch.Name()})
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": ch.Name(),
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Sprintf("%s: %v", ch.Name(), err))
			continue
		}
		started = append(started, ch)
	}
	if len(startErrors) > 0 {
		for _, ch := range started {
			if err := ch.Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]any{
					"channel": ch.Name(),
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("failed to start channels: %s", strings.Join(startErrors, "; "))
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx, done)
	logger.InfoCF("channels", "All channels started", map[string]any{"count": len(started)})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	logger.InfoC("channels", "All channels stopped")
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			logger.WarnCF("channels", "Unknown channel for outbound message", map[string]any{"channel": msg.Channel})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Error sending message to channel", map[string]any{
				"channel": msg.Channel,
				"error":   err.Error(),
			})
		}
	}
}

// Status reports whether each registered channel is running.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.IsRunning()
	}
	return out
}

func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
