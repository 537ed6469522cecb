package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/chat"
	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
	"github.com/traeumen927/chatGPT-sub000/pkg/preference"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
	"github.com/traeumen927/chatGPT-sub000/pkg/scheduler"
	"github.com/traeumen927/chatGPT-sub000/pkg/storage"
	"github.com/traeumen927/chatGPT-sub000/pkg/userinfo"
)

const refreshJob = "refresh-user-facts"

// app holds the services shared by every command.
type app struct {
	cfg      *config.Config
	db       *storage.SQLiteStore
	files    *storage.LocalFileStorage
	session  *auth.Session
	provider providers.LLMProvider

	mu      sync.Mutex
	closers []func()
	users   map[string]struct{}
	prefs   map[string]*preference.Service
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f, true)
	}
	return cfg, nil
}

// openApp opens storage for cfg. The model provider is only built when
// withProvider is set, so offline commands work without an API key.
func openApp(cfg *config.Config, withProvider bool) (*app, error) {
	db, err := storage.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	db.SetPollInterval(cfg.ObservePollInterval())

	files, err := storage.NewLocalFileStorage(cfg.UploadsPath())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		files:   files,
		session: auth.SessionFromConfig(cfg),
		users:   make(map[string]struct{}),
	}
	if withProvider {
		p, err := providers.NewOpenAIProvider(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.provider = p
	}
	return a, nil
}

func (a *app) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	a.session.Close()
	if err := a.db.Close(); err != nil {
		logger.WarnCF("app", "Failed to close database", map[string]any{"error": err.Error()})
	}
	logger.Sync()
}

func (a *app) currentUser() (auth.User, error) {
	return auth.Require(a.session)
}

// preferences returns the preference service of uid. Every session of a user
// shares one service so their writes are serialized.
func (a *app) preferences(uid string) *preference.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	if svc, ok := a.prefs[uid]; ok {
		return svc
	}
	if a.prefs == nil {
		a.prefs = make(map[string]*preference.Service)
	}
	extractor := preference.NewExtractor(preference.NewTokenizer(), preference.DefaultCues)
	svc := preference.NewService(a.db.Preferences(uid), extractor, preference.ServiceOptions{
		Decay: a.cfg.Memory.DecayConstant,
		TopN:  a.cfg.Memory.TopPreferences,
	})
	a.prefs[uid] = svc
	return svc
}

// newOrchestrator wires a chat session for uid. The fact store it binds is
// released when the app closes.
func (a *app) newOrchestrator(ctx context.Context, user auth.Accessor, uid string) (*chat.Orchestrator, error) {
	facts := userinfo.NewFactStore(a.cfg.FactTTL(), time.Now)
	factCtx, cancel := context.WithCancel(ctx)
	if err := facts.BindStore(factCtx, a.db.UserInfo(uid)); err != nil {
		cancel()
		facts.Close()
		return nil, err
	}

	opts := chat.OptionsFromConfig(a.cfg)
	opts.Provider = a.provider
	opts.User = user
	opts.Conversations = a.db.Conversations(uid)
	opts.Files = a.files
	opts.Preferences = a.preferences(uid)
	opts.Profile = userinfo.NewContextBuilder(facts, a.cfg.Memory.MaxAttributes)

	orch, err := chat.New(opts)
	if err != nil {
		cancel()
		facts.Close()
		return nil, err
	}

	a.mu.Lock()
	a.users[uid] = struct{}{}
	a.mu.Unlock()
	a.onClose(func() {
		cancel()
		facts.Close()
	})
	return orch, nil
}

// onClose registers fn to run when the app closes, before storage is released.
func (a *app) onClose(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// knownUsers lists the users that opened a chat session, sorted.
func (a *app) knownUsers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.users))
	for uid := range a.users {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// refreshFacts runs profile analysis over the user's recent messages.
func (a *app) refreshFacts(ctx context.Context, uid string) (userinfo.Info, userinfo.Profile, error) {
	if a.provider == nil {
		return nil, userinfo.Profile{}, fmt.Errorf("no model provider configured")
	}
	msgs, err := recentUserMessages(ctx, a.db.Conversations(uid), a.cfg.Memory.AnalysisWindow)
	if err != nil {
		return nil, userinfo.Profile{}, err
	}
	analyzer := userinfo.NewAnalyzer(a.provider, a.db.UserInfo(uid), a.cfg.Chat.SummaryModel, time.Now)
	return analyzer.Refresh(ctx, msgs)
}

// startRefresh schedules fact refresh for every known user.
func (a *app) startRefresh(ctx context.Context) (*scheduler.Scheduler, error) {
	s := scheduler.New()
	err := s.Add(refreshJob, a.cfg.Memory.RefreshCron, func(ctx context.Context) error {
		var failed []string
		for _, uid := range a.knownUsers() {
			if _, _, err := a.refreshFacts(ctx, uid); err != nil {
				failed = append(failed, uid+": "+err.Error())
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("refresh failed for %s", strings.Join(failed, "; "))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Start(ctx)
	return s, nil
}

func sortedKeys(info userinfo.Info) []string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// recentUserMessages collects up to window user messages, newest
// conversations first, and returns them oldest first.
func recentUserMessages(ctx context.Context, store *storage.ConversationStore, window int) ([]string, error) {
	if window <= 0 {
		window = 20
	}
	list, err := store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range list {
		msgs, err := store.FetchMessages(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for i := len(msgs) - 1; i >= 0 && len(out) < window; i-- {
			if msgs[i].Role == "user" && strings.TrimSpace(msgs[i].Text) != "" {
				out = append(out, msgs[i].Text)
			}
		}
		if len(out) >= window {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
