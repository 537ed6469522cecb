// Package conversation keeps the rolling message history sent to the model:
// a bounded, chronological list of turns plus an optional summary of the
// turns that were dropped.
package conversation

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleError marks a failed turn in the visible transcript. Error
	// messages are never sent to the model.
	RoleError Role = "error"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleError:
		return true
	default:
		return false
	}
}

// Message is a single immutable turn.
type Message struct {
	Role    Role
	Content string
}

// ContextManager holds the history and summary for one conversation.
// It is not safe for concurrent use; the owner serializes access.
type ContextManager struct {
	messages []Message
	summary  string
}

func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// Append adds one message to the tail.
func (m *ContextManager) Append(role Role, content string) {
	m.messages = append(m.messages, Message{Role: role, Content: content})
}

// Trim keeps only the most recent maxCount messages.
func (m *ContextManager) Trim(maxCount int) {
	if maxCount < 0 {
		maxCount = 0
	}
	if len(m.messages) <= maxCount {
		return
	}
	excess := len(m.messages) - maxCount
	kept := make([]Message, maxCount)
	copy(kept, m.messages[excess:])
	m.messages = kept
}

// UpdateSummary replaces the stored summary.
func (m *ContextManager) UpdateSummary(text string) {
	m.summary = text
}

// Clear empties history and summary.
func (m *ContextManager) Clear() {
	m.messages = nil
	m.summary = ""
}

// Replace swaps in a loaded conversation wholesale.
func (m *ContextManager) Replace(messages []Message, summary string) {
	m.messages = append([]Message(nil), messages...)
	m.summary = summary
}

func (m *ContextManager) Len() int {
	return len(m.messages)
}

// Messages returns a copy of the history, oldest first.
func (m *ContextManager) Messages() []Message {
	return append([]Message(nil), m.messages...)
}

func (m *ContextManager) Summary() (string, bool) {
	return m.summary, m.summary != ""
}

// Request assembles the history for a model call: the summary, when present,
// as a leading system message, then the history in order.
func (m *ContextManager) Request() []Message {
	out := make([]Message, 0, len(m.messages)+1)
	if m.summary != "" {
		out = append(out, Message{Role: RoleSystem, Content: SummaryPrefix + m.summary})
	}
	for _, msg := range m.messages {
		if msg.Role == RoleError {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Window is Request limited to the most recent maxCount history messages.
// The stored history is left untouched.
func (m *ContextManager) Window(maxCount int) []Message {
	msgs := m.Request()
	start := 0
	if m.summary != "" {
		start = 1
	}
	if maxCount < 0 {
		maxCount = 0
	}
	if len(msgs)-start <= maxCount {
		return msgs
	}
	out := make([]Message, 0, maxCount+start)
	out = append(out, msgs[:start]...)
	return append(out, msgs[len(msgs)-maxCount:]...)
}

// SummaryPrefix introduces the summary system message.
const SummaryPrefix = "Summary of the earlier conversation: "

// Transcript renders messages as "role: content" lines for summarization
// prompts. Long messages are truncated to limit runes.
func Transcript(messages []Message, limit int) string {
	var out []rune
	for _, msg := range messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		content := []rune(msg.Content)
		if limit > 0 && len(content) > limit {
			content = append(content[:limit], []rune("...")...)
		}
		out = append(out, []rune(string(msg.Role)+": ")...)
		out = append(out, content...)
		out = append(out, '\n')
	}
	return string(out)
}
