package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tradebrain/internal/observability"
	"github.com/harun/tradebrain/internal/tracing"
	"github.com/harun/tradebrain/pkg/session"
)

// Client requests one JSON object from a language model given a message history.
type Client interface {
	Complete(ctx context.Context, messages []session.Message) (map[string]interface{}, error)

	// Provider returns the provider name
	Provider() string
}

// Config holds the settings shared by all providers.
type Config struct {
	Provider    string // openrouter, openai, anthropic
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// New creates a client for cfg.Provider.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Provider)
	}

	switch cfg.Provider {
	case "openrouter", "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// ErrorKind classifies model call failures.
type ErrorKind string

const (
	KindProvider          ErrorKind = "ProviderError"
	KindMalformedResponse ErrorKind = "MalformedResponseError"
	KindEmptyResponse     ErrorKind = "EmptyResponseError"
)

var (
	// ErrProvider matches transport and auth failures.
	ErrProvider = errors.New("provider error")
	// ErrMalformedResponse matches content that is not a single JSON object.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyResponse matches calls that returned no content.
	ErrEmptyResponse = errors.New("empty response")
)

// Error is returned by every Client implementation.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int    // HTTP status for provider errors, 0 if unknown
	Content    string // raw model output for malformed responses
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%s)", e.Kind, e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	case ErrEmptyResponse:
		return e.Kind == KindEmptyResponse
	}
	return false
}

func providerError(provider string, status int, err error) *Error {
	return &Error{Kind: KindProvider, Provider: provider, StatusCode: status, Err: err}
}

// ParseObject decodes model output into one JSON object. Markdown code fences
// and prose around the object are tolerated.
func ParseObject(provider, content string) (map[string]interface{}, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, &Error{Kind: KindEmptyResponse, Provider: provider, Err: fmt.Errorf("model returned no content")}
	}

	text = stripFences(text)

	obj, err := decodeObject(text)
	if err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			obj, err = decodeObject(text[start : end+1])
		}
	}
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Provider: provider, Content: content, Err: err}
	}
	return obj, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func decodeObject(text string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("content holds more than one JSON value")
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("content is a JSON %T, not an object", v)
	}
	return obj, nil
}

// instrument wraps one provider call with a span, metrics and logging.
func instrument(ctx context.Context, logger zerolog.Logger, provider, model string, messages int, call func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerLLM, "llm.complete",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", messages),
	)
	start := time.Now()

	out, err := call(ctx)

	duration := time.Since(start)
	observability.RecordLLMRequest(provider, duration, err == nil)
	tracing.EndSpan(span, err)

	log := tracing.LoggerFromContext(ctx, logger)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Dur("duration", duration).Msg("Model call failed")
	} else {
		log.Debug().Str("provider", provider).Dur("duration", duration).Msg("Model call completed")
	}
	return out, err
}
