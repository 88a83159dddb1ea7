// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("sk-test-key").
		WithBaseURL(server.URL).
		WithLimiter(rate.NewLimiter(rate.Inf, 1)).
		WithHTTPClient(server.Client())
}

func TestListModels(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("HTTP-Referer") == "" {
			t.Error("missing HTTP-Referer header")
		}
		if r.Header.Get("X-Title") == "" {
			t.Error("missing X-Title header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,
			 "pricing":{"prompt":"0.0000025","completion":"0.00001"}},
			{"id":"anthropic/claude-sonnet-4","name":"Claude Sonnet 4"}
		]}`))
	}))

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "openai/gpt-4o" {
		t.Errorf("model id = %q", models[0].ID)
	}
	if models[0].ContextLength != 128000 {
		t.Errorf("context length = %d", models[0].ContextLength)
	}
	if models[0].Pricing == nil || models[0].Pricing.Prompt != "0.0000025" {
		t.Errorf("pricing = %+v", models[0].Pricing)
	}
	if models[1].DisplayName() != "Claude Sonnet 4" {
		t.Errorf("display name = %q", models[1].DisplayName())
	}
}

func TestListModelsSparseEntry(t *testing.T) {
	// Everything past "id" is optional in the catalogue; a bare entry
	// must decode with nil pricing rather than a zero-value struct.
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"vendor/model","context_length":8192}]}`))
	}))

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	if models[0].Pricing != nil {
		t.Errorf("pricing = %+v, want nil for an entry without one", models[0].Pricing)
	}
	if models[0].DisplayName() != "vendor/model" {
		t.Errorf("display name = %q", models[0].DisplayName())
	}
}

func TestGetCredits(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/credits" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"total_credits":25.5,"total_usage":10.25}}`))
	}))

	credits, err := client.GetCredits(context.Background())
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if got := credits.Remaining(); got != 15.25 {
		t.Errorf("Remaining() = %v, want 15.25", got)
	}
	if got := credits.RemainingFormatted(); got != "$15.25" {
		t.Errorf("RemainingFormatted() = %q, want %q", got, "$15.25")
	}
}

func TestNotConfigured(t *testing.T) {
	client := New("")
	if client.IsConfigured() {
		t.Error("empty key should not be configured")
	}
	if _, err := client.ListModels(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := client.StreamCompletion(context.Background(), "m", nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAuthError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"No auth credentials found"}}`))
	}))

	_, err := client.ListModels(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if !strings.Contains(err.Error(), "No auth credentials found") {
		t.Errorf("provider message lost: %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{"total_credits":1,"total_usage":0}}`))
	}))

	credits, err := client.GetCredits(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if credits.TotalCredits != 1 {
		t.Errorf("total credits = %v", credits.TotalCredits)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestNoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))

	_, err := client.ListModels(context.Background())
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", got)
	}
}

func TestDataPolicyError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No endpoints found matching your data policy"}}`))
	}))

	_, err := client.ListModels(context.Background())
	if !errors.Is(err, ErrDataPolicy) {
		t.Fatalf("expected ErrDataPolicy, got %v", err)
	}
	if !strings.Contains(err.Error(), "openrouter.ai/settings/privacy") {
		t.Errorf("expected remediation hint in error, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := calculateBackoff(1); got != time.Second {
		t.Errorf("attempt 1 backoff = %v", got)
	}
	if got := calculateBackoff(10); got != retryMaxDelay {
		t.Errorf("backoff must cap at %v, got %v", retryMaxDelay, got)
	}
}

func TestPooledTransportConfig(t *testing.T) {
	tr := newPooledTransport()
	// A nil DialContext falls back to an unbounded dial, which would hang
	// the streaming client forever on an unreachable endpoint.
	if tr.DialContext == nil {
		t.Error("transport must bound connection establishment with a dialer")
	}
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Error("transport must require TLS 1.2 or newer")
	}
}

func TestKeyFingerprint(t *testing.T) {
	a := New("sk-aaa").KeyFingerprint()
	b := New("sk-bbb").KeyFingerprint()
	if a == b {
		t.Error("distinct keys must have distinct fingerprints")
	}
	if strings.Contains(a, "sk-") {
		t.Error("fingerprint must not contain key material")
	}
	if got := New("").KeyFingerprint(); got != "none" {
		t.Errorf("empty key fingerprint = %q", got)
	}
}
