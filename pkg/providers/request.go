package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrStreamClosed is returned by Collect when a stream ends without a
// terminal event, typically because its context was cancelled.
var ErrStreamClosed = errors.New("stream closed before completion")

type RequestKind int

const (
	KindChat RequestKind = iota + 1
	KindImage
	KindIntent
	KindModels
)

func (k RequestKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindImage:
		return "image"
	case KindIntent:
		return "intent"
	case KindModels:
		return "models"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is one of ChatRequest, ImageRequest, IntentRequest or
// ModelsRequest.
type Request interface {
	Kind() RequestKind
}

type ChatRequest struct {
	Messages    []Message
	Model       string
	Stream      bool
	MaxTokens   int
	Temperature float32
}

type ImageRequest struct {
	Prompt string
	Size   string
	Model  string
	N      int
}

type IntentRequest struct {
	Prompt string
	Model  string
}

type ModelsRequest struct{}

func (ChatRequest) Kind() RequestKind   { return KindChat }
func (ImageRequest) Kind() RequestKind  { return KindImage }
func (IntentRequest) Kind() RequestKind { return KindIntent }
func (ModelsRequest) Kind() RequestKind { return KindModels }

// Result carries the payload matching the request kind that produced it.
type Result struct {
	Kind    RequestKind
	Text    string
	URLs    []string
	Models  []string
	IsImage bool
}

// Execute dispatches req to the matching provider call. Streaming chat
// requests are collected into a single Text.
func Execute(ctx context.Context, p LLMProvider, req Request) (Result, error) {
	res := Result{Kind: req.Kind()}
	switch r := req.(type) {
	case ChatRequest:
		if !r.Stream {
			text, err := p.Chat(ctx, r)
			res.Text = text
			return res, err
		}
		events, err := p.ChatStream(ctx, r)
		if err != nil {
			return res, err
		}
		text, err := Collect(events, nil)
		res.Text = text
		return res, err
	case ImageRequest:
		urls, err := p.GenerateImage(ctx, r)
		res.URLs = urls
		return res, err
	case IntentRequest:
		ok, err := p.DetectImageIntent(ctx, r)
		res.IsImage = ok
		return res, err
	case ModelsRequest:
		models, err := p.ListModels(ctx)
		res.Models = models
		return res, err
	default:
		return res, fmt.Errorf("unsupported request kind %s", req.Kind())
	}
}

// Collect drains a stream, calling onDelta for each chunk in arrival order,
// and returns the concatenated text.
func Collect(events <-chan StreamEvent, onDelta func(string)) (string, error) {
	var text []byte
	for ev := range events {
		if ev.Err != nil {
			return string(text), ev.Err
		}
		if ev.Delta != "" {
			text = append(text, ev.Delta...)
			if onDelta != nil {
				onDelta(ev.Delta)
			}
		}
		if ev.Done {
			return string(text), nil
		}
	}
	return string(text), ErrStreamClosed
}
