package chat

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

const sessionKeyVersion = "v1"

// SessionIdentity names one gateway conversation: a sender in a chat on a
// channel.
type SessionIdentity struct {
	Channel  string
	ChatID   string
	SenderID string
}

func (id SessionIdentity) Validate() error {
	if strings.TrimSpace(id.Channel) == "" {
		return fmt.Errorf("missing channel")
	}
	if strings.TrimSpace(id.ChatID) == "" {
		return fmt.Errorf("missing chat id")
	}
	if strings.TrimSpace(id.SenderID) == "" {
		return fmt.Errorf("missing sender id")
	}
	return nil
}

func (id SessionIdentity) Canonical() string {
	return strings.ToLower(strings.TrimSpace(id.Channel)) + "|" +
		strings.TrimSpace(id.ChatID) + "|" +
		strings.TrimSpace(id.SenderID)
}

// SessionKey is a stable opaque key for the identity.
func (id SessionIdentity) SessionKey() string {
	sum := sha1.Sum([]byte(id.Canonical()))
	return sessionKeyVersion + ":" + hex.EncodeToString(sum[:16])
}

// UserID is the storage scope for the sender, shared across their chats.
func (id SessionIdentity) UserID() string {
	return strings.ToLower(strings.TrimSpace(id.Channel)) + ":" + strings.TrimSpace(id.SenderID)
}

func resolveSessionKey(explicitKey string, id SessionIdentity) (string, error) {
	explicitKey = strings.TrimSpace(explicitKey)
	if strings.HasPrefix(explicitKey, sessionKeyVersion+":") {
		return explicitKey, nil
	}
	if err := id.Validate(); err != nil {
		if explicitKey != "" {
			return explicitKey, nil
		}
		return "", fmt.Errorf("resolve session identity: %w", err)
	}
	return id.SessionKey(), nil
}
