// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the gateway error taxonomy. Callers classify
// failures with errors.Is; the wrapped message carries the provider's
// human-readable text.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("OpenRouter API key not configured")

	// ErrAuth indicates authentication failed (invalid or expired API key).
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrBadRequest indicates the request was rejected as malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrDataPolicy indicates the account's data policy blocks the model.
	ErrDataPolicy = errors.New("data policy restriction")

	// ErrServer indicates an upstream 5xx failure.
	ErrServer = errors.New("server error")

	// ErrParse indicates a response body could not be decoded.
	ErrParse = errors.New("parse error")

	// ErrNetwork indicates a transport-level failure (DNS, TLS, refused).
	ErrNetwork = errors.New("network error")

	// ErrIdleTimeout indicates a stream stalled with no data for too long.
	ErrIdleTimeout = errors.New("stream idle timeout")
)

// APIError is an error response from the OpenRouter API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps an APIError onto the taxonomy sentinels by status and body text,
// so errors.Is(err, ErrRateLimited) works on wrapped API errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrServer:
		return e.Status >= 500 && e.Status < 600
	case ErrDataPolicy:
		return isDataPolicyMessage(e.Message)
	}
	return false
}

// isDataPolicyMessage recognises provider privacy-restriction responses.
// The exact phrases are preserved so UI layers can deep-link the user to
// the provider's privacy settings.
func isDataPolicyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "data policy") || strings.Contains(lower, "data retention")
}

// apiErrorResponse is the JSON error envelope the API returns.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"` // string or number depending on endpoint
		Message string          `json:"message"`
	} `json:"error"`
}

func (r *apiErrorResponse) codeString() string {
	raw := strings.Trim(string(r.Error.Code), `"`)
	if raw == "null" {
		return ""
	}
	return raw
}

// parseAPIError converts a non-2xx response body into a typed error.
// The body may be the JSON error envelope or raw text.
func parseAPIError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	code := ""

	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
		code = envelope.codeString()
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	apiErr := &APIError{Status: status, Code: code, Message: msg}

	// Privacy restrictions surface as 403/404/451 with a distinctive body.
	if isDataPolicyMessage(msg) {
		return fmt.Errorf("%w: %s (enable the model's data policy at openrouter.ai/settings/privacy)", ErrDataPolicy, msg)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrServer, apiErr.Error())
	}
	return apiErr
}

// isRetryable reports whether a unary request error is worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrServer) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}
