// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings provides persisted user settings for gtllm.
//
// Settings live in a single TOML file under the platform config
// directory:
//
//   - Windows: %APPDATA%\gtllm\settings.toml
//   - macOS:   ~/Library/Application Support/gtllm/settings.toml
//   - Linux:   ~/.gtllm/settings.toml
//
// The file holds the OpenRouter API key and the theme preference.
// SECURITY: The file is written with 0600 permissions because it
// contains the API credential. A missing file yields defaults; a
// corrupt file is an error the caller surfaces to the user.
package settings
