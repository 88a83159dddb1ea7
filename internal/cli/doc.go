// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the gtllm command line and runs the command
// handlers. Parsing is hand-rolled: a first pass strips global flags,
// the first remaining word picks the command, and each command parses
// its own flags. Handlers wire settings, the gateway client, the
// session store, and the mode engines together and print to stdout.
package cli
