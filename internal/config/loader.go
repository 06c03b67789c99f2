package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. TRADEBRAIN_LOOP_MAX_ITERATIONS.
const EnvPrefix = "TRADEBRAIN"

// legacyEnv maps config keys to the variable names used by earlier deployments.
var legacyEnv = map[string][]string{
	"llm.api_key":         {"OR_TOKEN"},
	"exchange.api_key":    {"KRAKEN_API_KEY"},
	"exchange.api_secret": {"KRAKEN_API_SECRET"},
	"delegate.api_key":    {"HF_TOKEN"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads defaults, then the config file if it exists, then environment
// overrides.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envNames := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envNames...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".tradebrain")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "tradebrain.log")
	}
	if cfg.Transcript.Dir == "" {
		cfg.Transcript.Dir = filepath.Join(cfg.DataDir, "transcripts")
	}
	if cfg.Audit.File == "" {
		cfg.Audit.File = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("delegate.provider", cfg.Delegate.Provider)
	v.SetDefault("delegate.base_url", cfg.Delegate.BaseURL)
	v.SetDefault("delegate.api_key", cfg.Delegate.APIKey)
	v.SetDefault("delegate.model", cfg.Delegate.Model)
	v.SetDefault("delegate.system_prompt", cfg.Delegate.SystemPrompt)
	v.SetDefault("delegate.mode", cfg.Delegate.Mode)

	v.SetDefault("exchange.base_url", cfg.Exchange.BaseURL)
	v.SetDefault("exchange.spot_base_url", cfg.Exchange.SpotBaseURL)
	v.SetDefault("exchange.api_key", cfg.Exchange.APIKey)
	v.SetDefault("exchange.api_secret", cfg.Exchange.APISecret)
	v.SetDefault("exchange.timeout", cfg.Exchange.Timeout)

	v.SetDefault("notify.kind", cfg.Notify.Kind)
	v.SetDefault("notify.url", cfg.Notify.URL)
	v.SetDefault("notify.token", cfg.Notify.Token)
	v.SetDefault("notify.chat_id", cfg.Notify.ChatID)
	v.SetDefault("notify.timeout", cfg.Notify.Timeout)

	v.SetDefault("loop.max_iterations", cfg.Loop.MaxIterations)
	v.SetDefault("loop.cycle_interval", cfg.Loop.CycleInterval)
	v.SetDefault("loop.max_wait", cfg.Loop.MaxWait)
	v.SetDefault("loop.completion_keywords", cfg.Loop.CompletionKeywords)
	v.SetDefault("loop.history_char_budget", cfg.Loop.HistoryCharBudget)
	v.SetDefault("loop.initial_trigger", cfg.Loop.InitialTrigger)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("transcript.enabled", cfg.Transcript.Enabled)
	v.SetDefault("transcript.dir", cfg.Transcript.Dir)
	v.SetDefault("transcript.retention", cfg.Transcript.Retention)
	v.SetDefault("transcript.max_files", cfg.Transcript.MaxFiles)

	v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	v.SetDefault("audit.file", cfg.Audit.File)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save writes the configuration to file. Credentials are written as given.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("llm", cfg.LLM)
	v.Set("delegate", cfg.Delegate)
	v.Set("exchange", cfg.Exchange)
	v.Set("notify", cfg.Notify)
	v.Set("loop", cfg.Loop)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("transcript", cfg.Transcript)
	v.Set("audit", cfg.Audit)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tradebrain", "tradebrain.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
