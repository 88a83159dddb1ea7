// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates multi-model chat rounds.
//
// Each chat mode (standard, PvP, collaborative, competitive, LLM's choice)
// has its own engine sharing one runtime contract: an engine accepts one
// user message at a time, fans it out to the selected models through a
// Gateway, throttles streamed partials to an Observer at ~20 fps, and
// persists the finished round to a history store exactly once. Cancelling
// the round's context aborts every in-flight stream and discards partial
// state.
package engine
