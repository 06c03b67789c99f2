package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/harun/tradebrain/pkg/session"
)

// DefaultOpenRouterURL is used when an openrouter client has no base URL.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenAIClient talks to OpenAI-compatible chat completion endpoints such as
// OpenRouter. Responses are requested in JSON object mode.
type OpenAIClient struct {
	client      openai.Client
	provider    string
	model       string
	temperature float64
	maxTokens   int
	logger      zerolog.Logger
}

// NewOpenAIClient creates a client for cfg. Provider "openrouter" defaults the
// base URL to OpenRouter.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && provider == "openrouter" {
		baseURL = DefaultOpenRouterURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if provider == "openrouter" {
		opts = append(opts, option.WithHeader("X-Title", "tradebrain"))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger.With().Str("component", "llm").Logger(),
	}
}

// Provider returns the provider name
func (c *OpenAIClient) Provider() string {
	return c.provider
}

// Complete sends the history and decodes the reply as one JSON object.
func (c *OpenAIClient) Complete(ctx context.Context, messages []session.Message) (map[string]interface{}, error) {
	return instrument(ctx, c.logger, c.provider, c.model, len(messages), func(ctx context.Context) (map[string]interface{}, error) {
		return c.complete(ctx, messages)
	})
}

func (c *OpenAIClient) complete(ctx context.Context, messages []session.Message) (map[string]interface{}, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, providerError(c.provider, status, err)
	}

	if len(response.Choices) == 0 {
		return nil, &Error{Kind: KindEmptyResponse, Provider: c.provider, Err: fmt.Errorf("no response choices returned")}
	}

	return ParseObject(c.provider, response.Choices[0].Message.Content)
}

func toOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case session.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case session.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}
