// chatGPT - Personalized ChatGPT client that remembers preferences and profile facts
// Based on DotAgent and nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 chatGPT contributors

// Package chat runs conversation turns: it assembles the model request from
// remembered preferences, profile facts and rolling history, dispatches it,
// and folds the reply back into history, the visible transcript and storage.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/conversation"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
	"github.com/traeumen927/chatGPT-sub000/pkg/preference"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
	"github.com/traeumen927/chatGPT-sub000/pkg/storage"
)

const profilePrefix = "Known facts about the user: "

// FileStorage stores attachment bytes under a relative path and returns a URL.
type FileStorage interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}

// ConversationStore persists conversations for the signed-in user.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string, question, answer storage.Entry) (string, error)
	AppendMessage(ctx context.Context, id, role, text string, urls []string) error
	FetchMessages(ctx context.Context, id string) ([]storage.ConversationMessage, error)
}

// PreferenceSource records preference cues and renders the ranked ones.
type PreferenceSource interface {
	Record(ctx context.Context, prompt string) ([]preference.Pair, error)
	PreferenceText(ctx context.Context, n int) (string, error)
}

// ProfileSource renders remembered user facts relevant to a prompt.
type ProfileSource interface {
	BuildProfileText(prompt string) (string, bool)
}

// Options wires an Orchestrator. Provider and User are required; every other
// collaborator is optional and its step is skipped when nil.
type Options struct {
	Provider      providers.LLMProvider
	User          auth.Accessor
	Conversations ConversationStore
	Files         FileStorage
	Preferences   PreferenceSource
	Profile       ProfileSource

	Model          string
	SummaryModel   string
	IntentModel    string
	ImageModel     string
	ImageSize      string
	MaxHistory     int
	SummaryTrigger int
	MaxRetry       int
	TopPreferences int
	DetectImages   bool
	RetryDelay     time.Duration
}

// OptionsFromConfig fills the model and history settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:          cfg.Chat.Model,
		SummaryModel:   cfg.Chat.SummaryModel,
		IntentModel:    cfg.Chat.IntentModel,
		ImageModel:     cfg.Chat.ImageModel,
		ImageSize:      cfg.Chat.ImageSize,
		MaxHistory:     cfg.Chat.MaxHistory,
		SummaryTrigger: cfg.Chat.SummaryTrigger,
		MaxRetry:       cfg.Chat.MaxRetry,
		TopPreferences: cfg.Memory.TopPreferences,
		DetectImages:   true,
	}
}

// Message is one entry of the visible transcript.
type Message struct {
	Role conversation.Role
	Text string
	URLs []string
}

type SendRequest struct {
	Prompt      string
	Attachments []Attachment
	// Model overrides the configured chat model for this turn.
	Model  string
	Stream bool
}

// Result is the outcome of one turn. A failed model call is reported in Err
// and as an error message in the transcript, never as a Send error.
type Result struct {
	Reply          string
	ImageURLs      []string
	AttachmentURLs []string
	UploadErrors   []error
	Err            error
}

func (r Result) Failed() bool { return r.Err != nil }

// Orchestrator owns one conversation session. History, transcript and the
// summarization flag belong to exec; the persisted conversation id belongs
// to store. Turns are serialized.
type Orchestrator struct {
	opts Options

	turnMu sync.Mutex
	exec   *bus.Executor
	store  *bus.Executor
	state  *bus.Relay[State]
	convID *bus.Relay[string]

	history     *conversation.ContextManager
	transcript  []Message
	summarizing bool
	generation  int

	storedID string

	bgCtx     context.Context
	bgCancel  context.CancelFunc
	bg        sync.WaitGroup
	closeOnce sync.Once
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, errors.New("chat: provider is required")
	}
	if opts.Model == "" {
		opts.Model = opts.Provider.DefaultModel()
	}
	if opts.SummaryModel == "" {
		opts.SummaryModel = opts.Model
	}
	if opts.IntentModel == "" {
		opts.IntentModel = opts.SummaryModel
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 10
	}
	if opts.SummaryTrigger <= opts.MaxHistory {
		opts.SummaryTrigger = opts.MaxHistory * 2
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.TopPreferences <= 0 {
		opts.TopPreferences = 5
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:     opts,
		exec:     bus.NewExecutor(),
		store:    bus.NewExecutor(),
		state:    bus.NewRelayWith(StateIdle),
		convID:   bus.NewRelayWith(""),
		history:  conversation.NewContextManager(),
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}, nil
}

// Send runs one turn. onChunk, when set, receives streamed deltas in order on
// the calling goroutine. The returned error is non-nil only when the turn
// could not start.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest, onChunk func(string)) (Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && len(req.Attachments) == 0 {
		return Result{}, errEmptyPrompt
	}
	user, err := auth.Require(o.opts.User)
	if err != nil {
		return Result{}, err
	}

	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.state.Publish(StateSending)
	o.recordPreferences(prompt)

	if len(req.Attachments) == 0 && o.wantsImage(ctx, prompt) {
		return o.sendImage(ctx, prompt)
	}

	res := Result{}
	res.AttachmentURLs, res.UploadErrors = uploadAll(ctx, o.opts.Files, user.UID, req.Attachments)
	text, images := userMessageParts(prompt, req.Attachments)

	var window []conversation.Message
	if err := o.exec.Call(ctx, func() {
		window = o.history.Window(o.opts.MaxHistory)
	}); err != nil {
		o.state.Publish(StateIdle)
		return Result{}, err
	}

	msgs := o.systemMessages(ctx, prompt)
	for _, m := range window {
		msgs = append(msgs, providers.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: text, ImageURLs: images})

	model := req.Model
	if model == "" {
		model = o.opts.Model
	}
	reply, err := o.complete(ctx, providers.ChatRequest{Messages: msgs, Model: model, Stream: req.Stream}, onChunk)
	if err != nil {
		res.Err = err
		return o.fail(ctx, prompt, res.AttachmentURLs, res)
	}

	res.Reply = reply
	o.commit(ctx, turn{
		prompt:       prompt,
		historyText:  text,
		userURLs:     res.AttachmentURLs,
		reply:        reply,
		historyReply: reply,
	})
	return res, nil
}

func (o *Orchestrator) sendImage(ctx context.Context, prompt string) (Result, error) {
	urls, err := o.opts.Provider.GenerateImage(ctx, providers.ImageRequest{
		Prompt: prompt,
		Size:   o.opts.ImageSize,
		Model:  o.opts.ImageModel,
		N:      1,
	})
	if err != nil {
		return o.fail(ctx, prompt, nil, Result{Err: err})
	}
	o.commit(ctx, turn{
		prompt:       prompt,
		historyText:  prompt,
		reply:        "",
		replyURLs:    urls,
		historyReply: "[generated image] " + strings.Join(urls, " "),
	})
	return Result{ImageURLs: urls}, nil
}

// wantsImage asks the intent model whether prompt requests an image. Errors
// fall back to a normal chat turn.
func (o *Orchestrator) wantsImage(ctx context.Context, prompt string) bool {
	if !o.opts.DetectImages || o.opts.ImageModel == "" {
		return false
	}
	ok, err := o.opts.Provider.DetectImageIntent(ctx, providers.IntentRequest{Prompt: prompt, Model: o.opts.IntentModel})
	if err != nil {
		logger.DebugCF("chat", "Image intent detection failed", map[string]any{"error": err.Error()})
		return false
	}
	return ok
}

func (o *Orchestrator) systemMessages(ctx context.Context, prompt string) []providers.Message {
	var out []providers.Message
	if o.opts.Preferences != nil {
		text, err := o.opts.Preferences.PreferenceText(ctx, o.opts.TopPreferences)
		if err != nil {
			logger.WarnCF("chat", "Preference lookup failed", map[string]any{"error": err.Error()})
		} else if text != "" {
			out = append(out, providers.Message{Role: providers.RoleSystem, Content: text})
		}
	}
	if o.opts.Profile != nil {
		if text, ok := o.opts.Profile.BuildProfileText(prompt); ok {
			out = append(out, providers.Message{Role: providers.RoleSystem, Content: profilePrefix + text})
		}
	}
	return out
}

func (o *Orchestrator) complete(ctx context.Context, req providers.ChatRequest, onChunk func(string)) (string, error) {
	if !req.Stream {
		return o.opts.Provider.Chat(ctx, req)
	}
	events, err := o.opts.Provider.ChatStream(ctx, req)
	if err != nil {
		return "", err
	}
	o.state.Publish(StateStreaming)
	return providers.Collect(events, onChunk)
}

func (o *Orchestrator) recordPreferences(prompt string) {
	if o.opts.Preferences == nil || prompt == "" {
		return
	}
	o.goBackground(func(ctx context.Context) {
		pairs, err := o.opts.Preferences.Record(ctx, prompt)
		if err != nil {
			logger.WarnCF("chat", "Preference recording failed", map[string]any{"error": err.Error()})
			return
		}
		if len(pairs) > 0 {
			logger.DebugCF("chat", "Recorded preferences", map[string]any{"count": len(pairs)})
		}
	})
}

// fail appends the prompt and an error message to the transcript. History is
// left as it was.
func (o *Orchestrator) fail(ctx context.Context, prompt string, urls []string, res Result) (Result, error) {
	logger.WarnCF("chat", "Model call failed", map[string]any{"error": res.Err.Error()})
	_ = o.exec.Call(context.WithoutCancel(ctx), func() {
		o.transcript = append(o.transcript,
			Message{Role: conversation.RoleUser, Text: prompt, URLs: urls},
			Message{Role: conversation.RoleError, Text: res.Err.Error()},
		)
	})
	o.state.Publish(StateFailed)
	return res, nil
}

type turn struct {
	prompt       string
	historyText  string
	userURLs     []string
	reply        string
	replyURLs    []string
	historyReply string
}

func (o *Orchestrator) commit(ctx context.Context, t turn) {
	_ = o.exec.Call(context.WithoutCancel(ctx), func() {
		o.history.Append(conversation.RoleUser, t.historyText)
		o.history.Append(conversation.RoleAssistant, t.historyReply)
		o.transcript = append(o.transcript,
			Message{Role: conversation.RoleUser, Text: t.prompt, URLs: t.userURLs},
			Message{Role: conversation.RoleAssistant, Text: t.reply, URLs: t.replyURLs},
		)
		if o.history.Len() > o.opts.SummaryTrigger && !o.summarizing {
			o.summarizing = true
			existing, _ := o.history.Summary()
			snapshot := o.history.Messages()
			gen := o.generation
			o.goBackground(func(ctx context.Context) {
				o.summarizeHistory(ctx, gen, existing, snapshot)
			})
		}
	})
	o.persist(storage.Entry{Text: t.prompt, URLs: t.userURLs}, storage.Entry{Text: t.reply, URLs: t.replyURLs})
	o.state.Publish(StateCompleted)
}

func (o *Orchestrator) summarizeHistory(ctx context.Context, gen int, existing string, snapshot []conversation.Message) {
	var summary string
	err := retry(ctx, retryConfig{MaxAttempts: o.opts.MaxRetry + 1, InitialDelay: o.opts.RetryDelay}, func() error {
		s, err := summarize(ctx, o.opts.Provider, o.opts.SummaryModel, existing, snapshot)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		logger.WarnCF("chat", "History summarization failed", map[string]any{
			"error": fmt.Errorf("%w: %w", ErrSummarizationFailed, err).Error(),
		})
	}

	_ = o.exec.Post(func() {
		if gen != o.generation {
			return
		}
		o.summarizing = false
		if err != nil {
			return
		}
		o.history.UpdateSummary(summary)
		o.history.Trim(o.opts.MaxHistory)
		logger.DebugCF("chat", "History summarized", map[string]any{"kept": o.history.Len()})
	})
}

// persist saves a completed turn. The first turn of an unsaved conversation
// creates it under a generated title; later turns are appended.
func (o *Orchestrator) persist(question, answer storage.Entry) {
	if o.opts.Conversations == nil {
		return
	}
	o.bg.Add(1)
	err := o.store.Post(func() {
		defer o.bg.Done()
		ctx := o.bgCtx
		if o.storedID == "" {
			title, err := generateTitle(ctx, o.opts.Provider, o.opts.SummaryModel, question.Text, answer.Text)
			if err != nil {
				logger.DebugCF("chat", "Title generation failed, using prompt", map[string]any{"error": err.Error()})
			}
			id, err := o.opts.Conversations.CreateConversation(ctx, title, question, answer)
			if err != nil {
				logger.WarnCF("chat", "Failed to save conversation", map[string]any{"error": err.Error()})
				return
			}
			o.storedID = id
			o.convID.Publish(id)
			logger.InfoCF("chat", "Conversation saved", map[string]any{"id": id, "title": title})
			return
		}
		if err := o.opts.Conversations.AppendMessage(ctx, o.storedID, string(conversation.RoleUser), question.Text, question.URLs); err != nil {
			logger.WarnCF("chat", "Failed to append message", map[string]any{"id": o.storedID, "error": err.Error()})
			return
		}
		if err := o.opts.Conversations.AppendMessage(ctx, o.storedID, string(conversation.RoleAssistant), answer.Text, answer.URLs); err != nil {
			logger.WarnCF("chat", "Failed to append message", map[string]any{"id": o.storedID, "error": err.Error()})
		}
	})
	if err != nil {
		o.bg.Done()
	}
}

func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		fn(o.bgCtx)
	}()
}

// NewConversation starts an empty, unsaved conversation.
func (o *Orchestrator) NewConversation(ctx context.Context) error {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if err := o.exec.Call(ctx, func() {
		o.history.Clear()
		o.transcript = nil
		o.summarizing = false
		o.generation++
	}); err != nil {
		return err
	}
	if err := o.store.Call(ctx, func() {
		o.storedID = ""
		o.convID.Publish("")
	}); err != nil {
		return err
	}
	o.state.Publish(StateIdle)
	return nil
}

// LoadConversation replaces the session with a persisted conversation. The
// transcript gets every message; the model history keeps the last MaxHistory.
func (o *Orchestrator) LoadConversation(ctx context.Context, id string) error {
	if o.opts.Conversations == nil {
		return errors.New("chat: no conversation store configured")
	}
	if _, err := auth.Require(o.opts.User); err != nil {
		return err
	}
	stored, err := o.opts.Conversations.FetchMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}

	history := make([]conversation.Message, 0, len(stored))
	transcript := make([]Message, 0, len(stored))
	for _, m := range stored {
		role := conversation.Role(m.Role)
		if !role.Valid() {
			continue
		}
		transcript = append(transcript, Message{Role: role, Text: m.Text, URLs: m.URLs})
		if role == conversation.RoleUser || role == conversation.RoleAssistant {
			history = append(history, conversation.Message{Role: role, Content: m.Text})
		}
	}

	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	if err := o.exec.Call(ctx, func() {
		o.history.Replace(history, "")
		o.history.Trim(o.opts.MaxHistory)
		o.transcript = transcript
		o.summarizing = false
		o.generation++
	}); err != nil {
		return err
	}
	if err := o.store.Call(ctx, func() {
		o.storedID = id
		o.convID.Publish(id)
	}); err != nil {
		return err
	}
	o.state.Publish(StateIdle)
	return nil
}

// Transcript returns a copy of the visible messages, oldest first.
func (o *Orchestrator) Transcript() []Message {
	var out []Message
	_ = o.exec.Call(context.Background(), func() {
		out = append([]Message(nil), o.transcript...)
	})
	return out
}

// History returns the model-facing history and summary.
func (o *Orchestrator) History() ([]conversation.Message, string) {
	var msgs []conversation.Message
	var summary string
	_ = o.exec.Call(context.Background(), func() {
		msgs = o.history.Messages()
		summary, _ = o.history.Summary()
	})
	return msgs, summary
}

// ConversationID is the id of the persisted conversation, or "" while unsaved.
func (o *Orchestrator) ConversationID() string {
	id, _ := o.convID.Value()
	return id
}

func (o *Orchestrator) State() State {
	s, _ := o.state.Value()
	return s
}

func (o *Orchestrator) SubscribeState() *bus.Subscription[State] {
	return o.state.Subscribe()
}

// Wait blocks until background work started by earlier turns has finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// Close cancels background work and releases the executors.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.bgCancel()
		o.bg.Wait()
		o.exec.Close()
		o.store.Close()
		o.state.Close()
		o.convID.Close()
	})
}
