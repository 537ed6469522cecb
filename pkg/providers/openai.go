// chatGPT - Personalized ChatGPT client that remembers preferences and profile facts
// Based on DotAgent and nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 chatGPT contributors

package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
	defaultHTTPTimeout   = 300 * time.Second

	intentSystemPrompt = "You classify requests. Answer with exactly one word: yes if the user is asking you to draw, paint or generate an image, otherwise no."
)

// OpenAIProvider talks to an OpenAI-compatible API through go-openai.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	intentModel  string
	authMode     string
}

// NewOpenAIProvider builds a provider from the providers.openai section.
// Exactly one of api_key or api_key_file must be set.
func NewOpenAIProvider(cfg *config.Config) (*OpenAIProvider, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cred, err := ResolveCredential(cfg)
	if err != nil {
		return nil, err
	}

	oc := cfg.Providers.OpenAI
	apiBase := strings.TrimRight(strings.TrimSpace(oc.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultOpenAIAPIBase
	}

	var base http.RoundTripper = http.DefaultTransport
	if proxy := strings.TrimSpace(oc.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse openai proxy: %w", err)
		}
		base = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	clientCfg := openai.DefaultConfig("")
	clientCfg.BaseURL = apiBase
	clientCfg.OrgID = strings.TrimSpace(oc.Organization)
	clientCfg.HTTPClient = &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: &keyTransport{base: base, cred: cred},
	}

	model := strings.TrimSpace(cfg.Chat.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	intent := strings.TrimSpace(cfg.Chat.IntentModel)
	if intent == "" {
		intent = model
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		intentModel:  intent,
		authMode:     cred.Mode,
	}, nil
}

func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// AuthMode is the credential mode in use: api_key or api_key_file.
func (p *OpenAIProvider) AuthMode() string {
	return p.authMode
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	creq := p.buildChatRequest(req)
	creq.Stream = false
	logger.DebugCF("provider", "Chat request", map[string]any{
		"model":    creq.Model,
		"messages": len(creq.Messages),
	})

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ModelError{Kind: DecodingFailed, Err: errors.New("response has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream starts a streamed completion. The returned channel is closed
// after its terminal event.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	creq := p.buildChatRequest(req)
	creq.Stream = true
	logger.DebugCF("provider", "Chat stream request", map[string]any{
		"model":    creq.Model,
		"messages": len(creq.Messages),
	})

	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, classifyError(err)
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamEvent{Done: true})
				return
			}
			if err != nil {
				send(StreamEvent{Err: classifyError(err)})
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(StreamEvent{Delta: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// DetectImageIntent asks a small model whether prompt requests an image.
func (p *OpenAIProvider) DetectImageIntent(ctx context.Context, req IntentRequest) (bool, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.intentModel
	}
	answer, err := p.Chat(ctx, ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: intentSystemPrompt},
			{Role: RoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes"), nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, req ImageRequest) ([]string, error) {
	n := req.N
	if n <= 0 {
		n = 1
	}
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              n,
		Size:           req.Size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		switch {
		case d.URL != "":
			urls = append(urls, d.URL)
		case d.B64JSON != "":
			urls = append(urls, "data:image/png;base64,"+d.B64JSON)
		}
	}
	if len(urls) == 0 {
		return nil, &ModelError{Kind: DecodingFailed, Err: errors.New("image response has no data")}
	}
	return urls, nil
}

func (p *OpenAIProvider) buildChatRequest(req ChatRequest) openai.ChatCompletionRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.ImageURLs) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.ImageURLs)+1)
		if m.Content != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: m.Content,
			})
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: u},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}
