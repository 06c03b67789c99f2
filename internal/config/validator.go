package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validator checks the format of configuration values. Its findings are
// advisory; Config.Validate decides whether the agent can start.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "openrouter":
		if !strings.HasPrefix(key, "sk-or-") {
			return fmt.Errorf("invalid OpenRouter API key format (should start with sk-or-)")
		}
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Telegram bot tokens have format: <bot_id>:<token>
	pattern := regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	if !pattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateURL checks that raw is an absolute http(s) URL
func (v *Validator) ValidateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", name)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateKeywords rejects blank completion keywords, which would match every reason
func (v *Validator) ValidateKeywords(keywords []string) error {
	for i, k := range keywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("loop.completion_keywords[%d] is blank", i)
		}
	}
	return nil
}

// ValidateConfig performs format checks across the whole config
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			errors = append(errors, fmt.Errorf("llm: %w", err))
		}
	}
	if cfg.LLM.BaseURL != "" {
		if err := v.ValidateURL("llm.base_url", cfg.LLM.BaseURL); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("llm: %w", err))
	}
	if cfg.LLM.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
			errors = append(errors, fmt.Errorf("llm: %w", err))
		}
	}

	if cfg.Delegate.Provider != "" && cfg.Delegate.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Delegate.APIKey, cfg.Delegate.Provider); err != nil {
			errors = append(errors, fmt.Errorf("delegate: %w", err))
		}
	}
	if cfg.Delegate.BaseURL != "" {
		if err := v.ValidateURL("delegate.base_url", cfg.Delegate.BaseURL); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Exchange.BaseURL != "" {
		if err := v.ValidateURL("exchange.base_url", cfg.Exchange.BaseURL); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Exchange.SpotBaseURL != "" {
		if err := v.ValidateURL("exchange.spot_base_url", cfg.Exchange.SpotBaseURL); err != nil {
			errors = append(errors, err)
		}
	}

	switch cfg.Notify.Kind {
	case "http":
		if cfg.Notify.URL != "" {
			if err := v.ValidateURL("notify.url", cfg.Notify.URL); err != nil {
				errors = append(errors, err)
			}
		}
	case "telegram":
		if cfg.Notify.Token != "" {
			if err := v.ValidateTelegramToken(cfg.Notify.Token); err != nil {
				errors = append(errors, err)
			}
		}
	}

	if err := v.ValidateKeywords(cfg.Loop.CompletionKeywords); err != nil {
		errors = append(errors, err)
	}
	if len(cfg.Loop.CompletionKeywords) == 0 {
		errors = append(errors, fmt.Errorf("loop.completion_keywords is empty: the agent only stops at max_iterations"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
