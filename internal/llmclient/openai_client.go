package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

// defaultOllamaEndpoint is Ollama's OpenAI compatible API root.
const defaultOllamaEndpoint = "http://localhost:11434/v1/"

// OpenAIClient serves OpenAI and any OpenAI compatible chat completions API
// (vLLM, Ollama, hosted VLM gateways).
type OpenAIClient struct {
	client   openai.Client
	config   config.LLMModelConfig
	provider config.LLMProvider
	logger   *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client for cfg. Extra options are appended after
// the ones derived from cfg, so tests can point it at a local server.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger, extra ...option.RequestOption) (*OpenAIClient, error) {
	endpoint := cfg.Endpoint
	if cfg.Provider == config.ProviderOllama && endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if cfg.APIKey == "" && cfg.Provider != config.ProviderOllama {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts := []option.RequestOption{option.WithMaxRetries(2)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Ollama ignores the key but the SDK insists on sending one.
		opts = append(opts, option.WithAPIKey("ollama"))
	}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}
	opts = append(opts, extra...)

	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderOpenAI
	}
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		config:   cfg,
		provider: provider,
		logger:   logger.Named("llm_client." + string(provider)),
	}, nil
}

// Generate issues one chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Options.Temperature),
	}
	maxTokens := c.config.MaxTokens
	if req.Options.MaxTokens > 0 {
		maxTokens = req.Options.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if req.Options.TopP > 0 {
		params.TopP = openai.Float(req.Options.TopP)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: c.provider, StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("%s chat completion failed: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s API returned no choices", c.provider)
	}

	c.logger.Info("LLM generation complete",
		zap.String("model", model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close implements schemas.LLMClient. The SDK holds no resources of its own.
func (c *OpenAIClient) Close() error { return nil }
