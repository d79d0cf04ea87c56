package llmclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

const anthropicMessage = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "test-model",
  "content": [{"type": "text", "text": "1. Click Proxy tab\n"}, {"type": "text", "text": "2. Toggle interception on"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 20, "output_tokens": 9}
}`

func setupAnthropicClient(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := setupTestLogger(t)
	cfg := getValidLLMConfig(config.ProviderAnthropic)
	cfg.Endpoint = server.URL + "/"

	client, err := NewAnthropicClient(cfg, logger, option.WithMaxRetries(0))
	require.NoError(t, err)
	return client
}

func TestAnthropicClient_Generate_Success(t *testing.T) {
	var body map[string]interface{}
	client := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, anthropicMessage)
	})

	out, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "1. Click Proxy tab\n2. Toggle interception on", out)
	assert.Equal(t, "test-model", body["model"])
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)
	system, ok := body["system"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "System prompt instructions.", system[0].(map[string]interface{})["text"])
}

func TestAnthropicClient_Generate_APIError(t *testing.T) {
	client := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status())
}

func TestNewAnthropicClient_MissingKey(t *testing.T) {
	logger, _ := setupTestLogger(t)
	cfg := getValidLLMConfig(config.ProviderAnthropic)
	cfg.APIKey = ""

	_, err := NewAnthropicClient(cfg, logger)
	assert.ErrorContains(t, err, "anthropic API key is required")
}
