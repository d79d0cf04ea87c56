package llmclient

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   config.LLMProvider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d, body: %s", e.Provider, e.StatusCode, e.Body)
}

// Status returns the HTTP status so callers can surface it in structured errors.
func (e *APIError) Status() int { return e.StatusCode }

// isTransientStatus reports whether a retry may succeed.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
