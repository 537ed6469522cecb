package providers

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model. ImageURLs are attached as
// image parts; they may be remote URLs or data URIs.
type Message struct {
	Role      string
	Content   string
	ImageURLs []string
}

// StreamEvent is one item of a streamed reply. Exactly one event per stream
// has Done set or Err non-nil, and it is always the last.
type StreamEvent struct {
	Delta string
	Err   error
	Done  bool
}

// LLMProvider is the model surface the chat core depends on.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
	ListModels(ctx context.Context) ([]string, error)
	DetectImageIntent(ctx context.Context, req IntentRequest) (bool, error)
	GenerateImage(ctx context.Context, req ImageRequest) ([]string, error)
	DefaultModel() string
}
