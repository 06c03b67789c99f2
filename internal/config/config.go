package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config represents the main tradebrain configuration
type Config struct {
	// Main language model
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Model used by callAI
	Delegate DelegateConfig `json:"delegate" mapstructure:"delegate"`

	// Exchange REST API
	Exchange ExchangeConfig `json:"exchange" mapstructure:"exchange"`

	// Operator notifications
	Notify NotifyConfig `json:"notify" mapstructure:"notify"`

	// Agent loop policy
	Loop LoopConfig `json:"loop" mapstructure:"loop"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Conversation transcript
	Transcript TranscriptConfig `json:"transcript" mapstructure:"transcript"`

	// Trade audit log
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig holds the main model provider settings
type LLMConfig struct {
	Provider    string        `json:"provider" mapstructure:"provider"` // openrouter, openai, anthropic
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DelegateConfig holds the settings of the delegated reasoning call.
// An empty provider reuses the main model.
type DelegateConfig struct {
	Provider     string `json:"provider" mapstructure:"provider"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	Model        string `json:"model" mapstructure:"model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
	Mode         string `json:"mode" mapstructure:"mode"` // isolated, inherit
}

// ExchangeConfig holds Kraken REST settings
type ExchangeConfig struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	SpotBaseURL string        `json:"spot_base_url" mapstructure:"spot_base_url"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	APISecret   string        `json:"api_secret" mapstructure:"api_secret"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NotifyConfig holds operator notification settings
type NotifyConfig struct {
	Kind    string        `json:"kind" mapstructure:"kind"` // none, http, telegram
	URL     string        `json:"url" mapstructure:"url"`
	Token   string        `json:"token" mapstructure:"token"`
	ChatID  int64         `json:"chat_id" mapstructure:"chat_id"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// LoopConfig holds the agent loop policy
type LoopConfig struct {
	MaxIterations      int           `json:"max_iterations" mapstructure:"max_iterations"`
	CycleInterval      time.Duration `json:"cycle_interval" mapstructure:"cycle_interval"`
	MaxWait            time.Duration `json:"max_wait" mapstructure:"max_wait"`
	CompletionKeywords []string      `json:"completion_keywords" mapstructure:"completion_keywords"`
	HistoryCharBudget  int           `json:"history_char_budget" mapstructure:"history_char_budget"`
	InitialTrigger     string        `json:"initial_trigger" mapstructure:"initial_trigger"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TranscriptConfig holds conversation transcript settings
type TranscriptConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Dir       string        `json:"dir" mapstructure:"dir"`
	Retention time.Duration `json:"retention" mapstructure:"retention"` // 0 keeps transcripts forever
	MaxFiles  int           `json:"max_files" mapstructure:"max_files"`
}

// AuditConfig holds trade audit settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// Delegation modes for callAI.
const (
	DelegationIsolated = "isolated"
	DelegationInherit  = "inherit"
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openrouter",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-oss-20b:free",
			Temperature: 0.2,
			MaxTokens:   4096,
			Timeout:     120 * time.Second,
		},
		Delegate: DelegateConfig{
			Mode: DelegationIsolated,
		},
		Exchange: ExchangeConfig{
			BaseURL:     "https://futures.kraken.com/derivatives/api/v3",
			SpotBaseURL: "https://api.kraken.com",
			Timeout:     30 * time.Second,
		},
		Notify: NotifyConfig{
			Kind:    "none",
			Timeout: 10 * time.Second,
		},
		Loop: LoopConfig{
			MaxIterations:      10,
			CycleInterval:      2 * time.Minute,
			MaxWait:            60 * time.Minute,
			CompletionKeywords: []string{"complete"},
			HistoryCharBudget:  60000,
			InitialTrigger:     ">",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Transcript: TranscriptConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
			MaxFiles:  500,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.Delegate.APIKey = mask(c.Delegate.APIKey)
	masked.Exchange.APIKey = mask(c.Exchange.APIKey)
	masked.Exchange.APISecret = mask(c.Exchange.APISecret)
	masked.Notify.Token = mask(c.Notify.Token)

	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// Secrets returns every configured credential, for log redaction.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.LLM.APIKey, c.Delegate.APIKey, c.Exchange.APIKey, c.Exchange.APISecret, c.Notify.Token} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration can start the agent. Every problem
// is reported; any error is fatal at startup.
func (c *Config) Validate() error {
	var errs []error

	if !oneOf(c.LLM.Provider, "openrouter", "openai", "anthropic") {
		errs = append(errs, fmt.Errorf("llm.provider: invalid provider %q (must be: openrouter, openai, anthropic)", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required (set OR_TOKEN or TRADEBRAIN_LLM_API_KEY)"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}

	if c.Delegate.Provider != "" {
		if !oneOf(c.Delegate.Provider, "openrouter", "openai", "anthropic") {
			errs = append(errs, fmt.Errorf("delegate.provider: invalid provider %q", c.Delegate.Provider))
		}
		if c.Delegate.APIKey == "" {
			errs = append(errs, fmt.Errorf("delegate.api_key is required when delegate.provider is set"))
		}
		if c.Delegate.Model == "" {
			errs = append(errs, fmt.Errorf("delegate.model is required when delegate.provider is set"))
		}
	}
	if !oneOf(c.Delegate.Mode, DelegationIsolated, DelegationInherit) {
		errs = append(errs, fmt.Errorf("delegate.mode: invalid mode %q (must be: isolated, inherit)", c.Delegate.Mode))
	}

	if c.Exchange.BaseURL == "" {
		errs = append(errs, fmt.Errorf("exchange.base_url is required"))
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		errs = append(errs, fmt.Errorf("exchange.api_key and exchange.api_secret are required (set KRAKEN_API_KEY and KRAKEN_API_SECRET)"))
	}

	switch c.Notify.Kind {
	case "", "none":
	case "http":
		if c.Notify.URL == "" {
			errs = append(errs, fmt.Errorf("notify.url is required when notify.kind is http"))
		}
	case "telegram":
		if c.Notify.Token == "" {
			errs = append(errs, fmt.Errorf("notify.token is required when notify.kind is telegram"))
		}
		if c.Notify.ChatID == 0 {
			errs = append(errs, fmt.Errorf("notify.chat_id is required when notify.kind is telegram"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.kind: invalid kind %q (must be: none, http, telegram)", c.Notify.Kind))
	}

	if c.Loop.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("loop.max_iterations must be > 0, got %d", c.Loop.MaxIterations))
	}
	if c.Loop.CycleInterval < 0 {
		errs = append(errs, fmt.Errorf("loop.cycle_interval must be >= 0"))
	}
	if c.Loop.MaxWait <= 0 {
		errs = append(errs, fmt.Errorf("loop.max_wait must be > 0"))
	}
	if c.Loop.HistoryCharBudget < 0 {
		errs = append(errs, fmt.Errorf("loop.history_char_budget must be >= 0"))
	}
	if c.Loop.InitialTrigger == "" {
		errs = append(errs, fmt.Errorf("loop.initial_trigger cannot be empty"))
	}

	if c.Transcript.Retention < 0 {
		errs = append(errs, fmt.Errorf("transcript.retention must be >= 0"))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
