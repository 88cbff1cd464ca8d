package exchange

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exchange %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("exchange %s: status %d: %s", e.Op, e.Status, e.Message)
}

// Unwrap returns the goSession sentinel for the status.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return goSession.ErrInvalidCredentials
	case http.StatusTooManyRequests:
		return goSession.ErrLoginRateLimited
	default:
		return goSession.ErrExchangeRejected
	}
}

func decodeAPIError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	apiErr := &APIError{Op: op, Status: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
		Error   any    `json:"error"`
	}
	if len(data) > 0 && json.Unmarshal(data, &payload) == nil {
		apiErr.Message = firstNonEmpty(payload.Message, textOf(payload.Detail), textOf(payload.Error))
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(http.StatusText(resp.StatusCode))
	}
	return apiErr
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if m, ok := t["message"].(string); ok {
			return m
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
