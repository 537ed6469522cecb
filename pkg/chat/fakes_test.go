package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
)

// fakeProvider answers turns with reply, summaries with summary and titles
// with title. It is safe for use from background goroutines.
type fakeProvider struct {
	mu sync.Mutex

	reply      string
	replyErr   error
	summary    string
	summaryErr error
	title      string
	chunks     []string
	intent     bool
	imageURLs  []string

	turns        []providers.ChatRequest
	summaryCalls int
	titleCalls   int
	imageCalls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{reply: "reply", summary: "summary", title: "Title"}
}

func (p *fakeProvider) Chat(_ context.Context, req providers.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(req.Messages) > 0 {
		switch req.Messages[0].Content {
		case summarySystemPrompt:
			p.summaryCalls++
			return p.summary, p.summaryErr
		case titleSystemPrompt:
			p.titleCalls++
			return p.title, nil
		}
	}
	p.turns = append(p.turns, req)
	return p.reply, p.replyErr
}

func (p *fakeProvider) ChatStream(_ context.Context, req providers.ChatRequest) (<-chan providers.StreamEvent, error) {
	p.mu.Lock()
	p.turns = append(p.turns, req)
	chunks := append([]string(nil), p.chunks...)
	replyErr := p.replyErr
	p.mu.Unlock()

	out := make(chan providers.StreamEvent, len(chunks)+1)
	for _, c := range chunks {
		out <- providers.StreamEvent{Delta: c}
	}
	if replyErr != nil {
		out <- providers.StreamEvent{Err: replyErr}
	} else {
		out <- providers.StreamEvent{Done: true}
	}
	close(out)
	return out, nil
}

func (p *fakeProvider) ListModels(context.Context) ([]string, error) {
	return []string{"gpt-4o"}, nil
}

func (p *fakeProvider) DetectImageIntent(context.Context, providers.IntentRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent, nil
}

func (p *fakeProvider) GenerateImage(context.Context, providers.ImageRequest) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imageCalls++
	return p.imageURLs, nil
}

func (p *fakeProvider) DefaultModel() string { return "gpt-4o" }

func (p *fakeProvider) lastTurn() providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turns[len(p.turns)-1]
}

func (p *fakeProvider) counts() (summaries, titles int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summaryCalls, p.titleCalls
}

// fakeFiles fails uploads whose path contains a name listed in fail.
type fakeFiles struct {
	mu   sync.Mutex
	fail []string
	seen []string
}

func (f *fakeFiles) Upload(_ context.Context, _ []byte, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, path)
	for _, name := range f.fail {
		if strings.HasSuffix(path, "/"+name) {
			return "", errors.New("storage unavailable")
		}
	}
	return "file:///uploads/" + path, nil
}

type stubProfile struct{ text string }

func (s stubProfile) BuildProfileText(string) (string, bool) {
	return s.text, s.text != ""
}

func signedIn(uid string) *auth.Session {
	s := auth.NewSession()
	s.SignIn(auth.User{UID: uid})
	return s
}
