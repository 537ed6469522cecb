package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/traeumen927/chatGPT-sub000/pkg/conversation"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
)

const (
	summaryMessageLimit = 600
	titleMaxRunes       = 40
)

const summarySystemPrompt = "You condense chat history. Merge the existing summary with the new " +
	"transcript into a short paragraph that keeps names, facts, decisions and open questions. " +
	"Reply with the summary only."

const titleSystemPrompt = "Write a short title of at most six words for the conversation below. " +
	"Reply with the title only, without quotes."

// summarize asks the model for a merged summary of existing and history.
func summarize(ctx context.Context, p providers.LLMProvider, model, existing string, history []conversation.Message) (string, error) {
	var user strings.Builder
	if existing != "" {
		user.WriteString("Existing summary:\n")
		user.WriteString(existing)
		user.WriteString("\n\n")
	}
	user.WriteString("Transcript:\n")
	user.WriteString(conversation.Transcript(history, summaryMessageLimit))

	reply, err := p.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: summarySystemPrompt},
			{Role: providers.RoleUser, Content: user.String()},
		},
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty summary", ErrSummarizationFailed)
	}
	return reply, nil
}

// generateTitle names a new conversation from its first exchange. It falls
// back to the start of the question when the model call fails.
func generateTitle(ctx context.Context, p providers.LLMProvider, model, question, answer string) (string, error) {
	reply, err := p.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: titleSystemPrompt},
			{Role: providers.RoleUser, Content: "Q: " + question + "\nA: " + truncateRunes(answer, summaryMessageLimit)},
		},
	})
	if err == nil {
		if title := cleanTitle(reply); title != "" {
			return title, nil
		}
	}
	return fallbackTitle(question), err
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimPrefix(s, "Title: ")
	return truncateRunes(strings.TrimSpace(s), titleMaxRunes)
}

func fallbackTitle(question string) string {
	title := truncateRunes(strings.Join(strings.Fields(question), " "), titleMaxRunes)
	if title == "" {
		return "New conversation"
	}
	return title
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
