package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid openrouter key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-or-v1-abc", "openrouter"))
	})

	t.Run("invalid openrouter key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("sk-abc", "openrouter"))
	})

	t.Run("valid anthropic key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-test123", "anthropic"))
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("invalid-key", "anthropic"))
	})

	t.Run("valid openai key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "openrouter"))
	})
}

func TestValidateTelegramToken(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTelegramToken("123456789:ABCdefGHIjklMNOpqrsTUVwxyz"))
	assert.Error(t, v.ValidateTelegramToken("invalid-token"))
	assert.Error(t, v.ValidateTelegramToken(""))
}

func TestValidateURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateURL("exchange.base_url", "https://futures.kraken.com/derivatives/api/v3"))
	assert.ErrorContains(t, v.ValidateURL("notify.url", "ftp://example.com"), "scheme")
	assert.ErrorContains(t, v.ValidateURL("notify.url", "https://"), "host")
}

func TestValidateTemperature(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTemperature(0))
	assert.NoError(t, v.ValidateTemperature(1.5))
	assert.Error(t, v.ValidateTemperature(-0.1))
	assert.Error(t, v.ValidateTemperature(2.1))
}

func TestValidateMaxTokens(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMaxTokens(4096))
	assert.Error(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(300000))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateKeywords(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateKeywords([]string{"complete", "done"}))
	assert.Error(t, v.ValidateKeywords([]string{"complete", "  "}))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("should pass a well formed config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "sk-or-v1-abc"

		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("should collect format problems", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "wrong"
		cfg.Exchange.BaseURL = "futures.kraken.com"
		cfg.Notify.Kind = "telegram"
		cfg.Notify.Token = "bad"
		cfg.Loop.CompletionKeywords = nil
		cfg.Logging.Level = "trace"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})
}
