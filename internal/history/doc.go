// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history models chat sessions and persists them to disk.
//
// A session file is one JSON document: session metadata, a mode-tagged
// history payload, and created/updated timestamps. Files live under the
// config directory in chats/<uuid>.json and are written atomically with
// owner-only permissions, so a crash mid-save never corrupts an existing
// session.
package history
