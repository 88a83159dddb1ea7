// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway provides the OpenRouter client for gtllm.
//
// OpenRouter exposes many LLM providers behind a single OpenAI-compatible
// API. This package implements model listing, credit queries, and
// streamed chat completions, including concurrent multi-model fan-out
// with per-model event attribution.
//
// Streaming contract: every stream delivers zero or more Content events
// followed by exactly one terminal event (Done or Failed), then the
// channel closes. A failure in one model of a multi-stream never
// disturbs its siblings.
package gateway
