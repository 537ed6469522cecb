package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Chat      ChatConfig      `json:"chat"`
	Providers ProvidersConfig `json:"providers"`
	Memory    MemoryConfig    `json:"memory"`
	Storage   StorageConfig   `json:"storage"`
	User      UserConfig      `json:"user"`
	Channels  ChannelsConfig  `json:"channels"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type ChatConfig struct {
	Model          string `json:"model" env:"CHATGPT_CHAT_MODEL"`
	Stream         bool   `json:"stream" env:"CHATGPT_CHAT_STREAM"`
	MaxHistory     int    `json:"max_history" env:"CHATGPT_CHAT_MAX_HISTORY"`
	SummaryTrigger int    `json:"summary_trigger" env:"CHATGPT_CHAT_SUMMARY_TRIGGER"`
	MaxRetry       int    `json:"max_retry" env:"CHATGPT_CHAT_MAX_RETRY"`
	ImageModel     string `json:"image_model" env:"CHATGPT_CHAT_IMAGE_MODEL"`
	ImageSize      string `json:"image_size" env:"CHATGPT_CHAT_IMAGE_SIZE"`
	IntentModel    string `json:"intent_model" env:"CHATGPT_CHAT_INTENT_MODEL"`
	SummaryModel   string `json:"summary_model" env:"CHATGPT_CHAT_SUMMARY_MODEL"`
}

type ProvidersConfig struct {
	OpenAI OpenAIConfig `json:"openai"`
}

type OpenAIConfig struct {
	APIKey       string `json:"api_key" env:"CHATGPT_PROVIDERS_OPENAI_API_KEY"`
	APIKeyFile   string `json:"api_key_file" env:"CHATGPT_PROVIDERS_OPENAI_API_KEY_FILE"`
	APIBase      string `json:"api_base" env:"CHATGPT_PROVIDERS_OPENAI_API_BASE"`
	Organization string `json:"organization,omitempty" env:"CHATGPT_PROVIDERS_OPENAI_ORGANIZATION"`
	Proxy        string `json:"proxy,omitempty" env:"CHATGPT_PROVIDERS_OPENAI_PROXY"`
}

type MemoryConfig struct {
	DecayConstant  float64 `json:"decay_constant" env:"CHATGPT_MEMORY_DECAY_CONSTANT"`
	TopPreferences int     `json:"top_preferences" env:"CHATGPT_MEMORY_TOP_PREFERENCES"`
	MaxAttributes  int     `json:"max_attributes" env:"CHATGPT_MEMORY_MAX_ATTRIBUTES"`
	FactTTLDays    int     `json:"fact_ttl_days" env:"CHATGPT_MEMORY_FACT_TTL_DAYS"`
	RefreshCron    string  `json:"refresh_cron" env:"CHATGPT_MEMORY_REFRESH_CRON"`
	ObservePollMS  int     `json:"observe_poll_ms" env:"CHATGPT_MEMORY_OBSERVE_POLL_MS"`
	AnalysisWindow int     `json:"analysis_window" env:"CHATGPT_MEMORY_ANALYSIS_WINDOW"`
}

type StorageConfig struct {
	Workspace string `json:"workspace" env:"CHATGPT_STORAGE_WORKSPACE"`
}

type UserConfig struct {
	UID         string `json:"uid" env:"CHATGPT_USER_UID"`
	DisplayName string `json:"display_name" env:"CHATGPT_USER_DISPLAY_NAME"`
	PhotoURL    string `json:"photo_url,omitempty" env:"CHATGPT_USER_PHOTO_URL"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"CHATGPT_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CHATGPT_CHANNELS_DISCORD_ALLOW_FROM"`
}

type LogConfig struct {
	Level string `json:"level" env:"CHATGPT_LOG_LEVEL"`
	File  string `json:"file,omitempty" env:"CHATGPT_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			Model:          "gpt-4o",
			Stream:         true,
			MaxHistory:     10,
			SummaryTrigger: 20,
			MaxRetry:       2,
			ImageModel:     "dall-e-3",
			ImageSize:      "1024x1024",
			IntentModel:    "gpt-4o-mini",
			SummaryModel:   "gpt-4o-mini",
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{},
		},
		Memory: MemoryConfig{
			DecayConstant:  0.001,
			TopPreferences: 5,
			MaxAttributes:  3,
			FactTTLDays:    365,
			RefreshCron:    "*/30 * * * *",
			ObservePollMS:  2000,
			AnalysisWindow: 20,
		},
		Storage: StorageConfig{
			Workspace: "~/.chatgpt/workspace",
		},
		User: UserConfig{
			UID:         "local",
			DisplayName: "",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate rejects settings the chat pipeline cannot honour.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Chat.MaxHistory <= 0 {
		return fmt.Errorf("chat.max_history must be positive, got %d", c.Chat.MaxHistory)
	}
	if c.Chat.SummaryTrigger <= c.Chat.MaxHistory {
		return fmt.Errorf("chat.summary_trigger (%d) must be greater than chat.max_history (%d)", c.Chat.SummaryTrigger, c.Chat.MaxHistory)
	}
	if c.Chat.MaxRetry < 0 {
		return fmt.Errorf("chat.max_retry must not be negative")
	}
	if c.Memory.DecayConstant < 0 {
		return fmt.Errorf("memory.decay_constant must not be negative")
	}
	return nil
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Workspace)
}

// DatabasePath is the SQLite file holding conversations, preferences and facts.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.WorkspacePath(), "state", "chat.db")
}

// UploadsPath is the root directory for attachment uploads.
func (c *Config) UploadsPath() string {
	return filepath.Join(c.WorkspacePath(), "uploads")
}

func (c *Config) FactTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	days := c.Memory.FactTTLDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c *Config) ObservePollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Memory.ObservePollMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Memory.ObservePollMS) * time.Millisecond
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.OpenAI.APIKey
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
