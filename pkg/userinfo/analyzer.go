package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
)

const analyzerPrompt = `Extract stable personal facts about the user from the messages below.
Reply with a single JSON object mapping short lowercase attribute names (for example "age", "job", "hobby", "interest", "gender") to arrays of string values.
Only include facts the user states about themselves. Reply with {} when there are none.`

// Analyzer asks the model for user facts in recent messages and merges them
// into the remote store.
type Analyzer struct {
	provider providers.LLMProvider
	store    InfoStore
	model    string
	now      func() time.Time
}

func NewAnalyzer(provider providers.LLMProvider, store InfoStore, model string, now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{provider: provider, store: store, model: model, now: now}
}

// Extract returns the attributes the model found in messages.
func (a *Analyzer) Extract(ctx context.Context, messages []string) (map[string][]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(m))
		sb.WriteString("\n")
	}

	reply, err := a.provider.Chat(ctx, providers.ChatRequest{
		Model: a.model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: analyzerPrompt},
			{Role: providers.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, err
	}
	return ParseAttributes(reply)
}

// Refresh extracts facts from messages, merges them into the stored info and
// writes the result back. It returns the merged info and the profile: the
// one derived from the previously stored facts, with only the fields named
// by this extraction overwritten.
func (a *Analyzer) Refresh(ctx context.Context, messages []string) (Info, Profile, error) {
	attrs, err := a.Extract(ctx, messages)
	if err != nil {
		return nil, Profile{}, fmt.Errorf("extract user facts: %w", err)
	}
	if len(attrs) == 0 {
		return nil, Profile{}, nil
	}

	current, err := a.store.Fetch(ctx)
	if err != nil {
		return nil, Profile{}, fmt.Errorf("fetch user info: %w", err)
	}
	now := a.now().Unix()
	merged := Merge(current, attrs, now)
	if err := a.store.Update(ctx, merged); err != nil {
		return nil, Profile{}, fmt.Errorf("update user info: %w", err)
	}
	profile := MergeProfile(ProfileFromInfo(current), ProfileFromInfo(Merge(nil, attrs, now)))

	logger.InfoCF("userinfo", "User facts refreshed", map[string]any{
		"observed":   len(attrs),
		"attributes": len(merged),
		"profile":    profile.String(),
	})
	return merged, profile, nil
}

// ParseAttributes decodes a model reply into attribute values. Code fences
// around the JSON are ignored, and scalar values are accepted alongside
// arrays.
func ParseAttributes(reply string) (map[string][]string, error) {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &providers.ModelError{Kind: providers.DecodingFailed, Err: fmt.Errorf("parse attributes: %w", err)}
	}

	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		var values []string
		switch val := v.(type) {
		case []any:
			for _, item := range val {
				if s := scalarString(item); s != "" {
					values = append(values, s)
				}
			}
		default:
			if s := scalarString(val); s != "" {
				values = append(values, s)
			}
		}
		if len(values) > 0 {
			out[k] = values
		}
	}
	return out, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", val))
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}
