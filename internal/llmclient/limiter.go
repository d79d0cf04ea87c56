package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// RateLimitedClient throttles calls to an underlying client.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ schemas.LLMClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient allows requestsPerMinute calls with a burst of one.
func NewRateLimitedClient(next schemas.LLMClient, requestsPerMinute float64, logger *zap.Logger) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
		logger:  logger.Named("llm_limiter"),
	}
}

// Generate waits for a token, then delegates.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}
	return c.next.Generate(ctx, req)
}

// Close closes the underlying client.
func (c *RateLimitedClient) Close() error {
	return c.next.Close()
}
