// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gtllm/internal/logging"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout is the total timeout for unary API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum silence tolerated between
	// streamed chunks before the stream is failed.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient unary failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps unary response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	defaultReferer = "https://github.com/jeranaias/gtllm"
	defaultTitle   = "gtllm"
	userAgent      = "gtllm/0.1.0"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for unary requests.
	sharedHTTPClient = &http.Client{
		Transport: newPooledTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no total timeout; streaming lifetime is
	// controlled by context plus the per-chunk idle watchdog.
	sharedStreamingClient = &http.Client{
		Transport: newPooledTransport(),
	}
)

func newPooledTransport() *http.Transport {
	return &http.Transport{
		// RELIABILITY: Bounded dial keeps a dead endpoint from hanging
		// the streaming client, which has no total timeout.
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// MESSAGE AND MODEL TYPES
// =============================================================================

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// Pricing is per-token pricing for a model, as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Model describes one model available through the gateway.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ContextLength int      `json:"context_length,omitempty"`
	Pricing       *Pricing `json:"pricing,omitempty"`
}

// DisplayName returns the human-readable name, falling back to the ID.
func (m Model) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// modelsResponse is the /models envelope.
type modelsResponse struct {
	Data []Model `json:"data"`
}

// Credits is the account balance snapshot from /credits.
type Credits struct {
	TotalCredits float64 `json:"total_credits"`
	TotalUsage   float64 `json:"total_usage"`
}

// Remaining returns the unspent balance.
func (c Credits) Remaining() float64 {
	return c.TotalCredits - c.TotalUsage
}

// RemainingFormatted renders the balance for display, e.g. "$12.34".
func (c Credits) RemainingFormatted() string {
	return fmt.Sprintf("$%.2f", c.Remaining())
}

// creditsResponse is the /credits envelope.
type creditsResponse struct {
	Data Credits `json:"data"`
}

// completionRequest is the /chat/completions request body.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to an OpenRouter-compatible gateway.
type Client struct {
	apiKey       string
	baseURL      string
	referer      string
	title        string
	maxRetries   int
	idleTimeout  time.Duration
	limiter      *rate.Limiter
	httpClient   *http.Client
	streamClient *http.Client
	log          *zap.SugaredLogger
}

// New creates a client with the given API key. An empty key is allowed;
// requests will fail with ErrNotConfigured until one is set.
func New(apiKey string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultBaseURL,
		referer:      defaultReferer,
		title:        defaultTitle,
		maxRetries:   DefaultMaxRetries,
		idleTimeout:  DefaultIdleTimeout,
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		log:          logging.New("gateway"),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithReferer sets the HTTP-Referer header value.
func (c *Client) WithReferer(url string) *Client {
	c.referer = url
	return c
}

// WithTitle sets the X-Title header value.
func (c *Client) WithTitle(title string) *Client {
	c.title = title
	return c
}

// WithMaxRetries sets the retry budget for unary requests.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithIdleTimeout sets the per-chunk stream idle timeout.
func (c *Client) WithIdleTimeout(d time.Duration) *Client {
	c.idleTimeout = d
	return c
}

// WithLimiter replaces the client-side request pacer.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// WithHTTPClient replaces both underlying HTTP clients. Intended for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key.
// SECURITY: Use this in logs instead of any fragment of the key itself.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// setHeaders applies the headers OpenRouter requires on every call.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// =============================================================================
// UNARY OPERATIONS
// =============================================================================

// ListModels retrieves the available models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var envelope modelsResponse
	if err := c.getJSON(ctx, "/models", &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// GetCredits retrieves the account's credit balance.
func (c *Client) GetCredits(ctx context.Context) (Credits, error) {
	var envelope creditsResponse
	if err := c.getJSON(ctx, "/credits", &envelope); err != nil {
		return Credits{}, err
	}
	return envelope.Data, nil
}

// getJSON performs an authenticated GET with retries and decodes the body.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		err := c.doGetJSON(ctx, path, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doGetJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.log.Debugw("request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// readResponse reads a response body with a size cap.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
