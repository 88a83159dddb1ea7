// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide structured logger.
//
// All packages obtain named loggers through New; the root logger writes
// JSON to stdout so log collectors can ingest it without extra parsing.
// SECURITY: API keys and message contents must never be logged; log the
// presence or length of a secret, not its value.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
	root   *zap.SugaredLogger
	atom   zap.AtomicLevel
	once   sync.Once
)

func ensure() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		atom = zap.NewAtomicLevel()

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
		root = logger.Sugar()
	})
}

// Init configures the root logger and sets the level. Safe to call more
// than once; the underlying logger is built exactly once.
func Init(debug bool) {
	ensure()
	SetDebug(debug)
}

// New returns a named logger. Initialization is applied lazily so library
// code can grab a logger without caring about startup order.
func New(name string) *zap.SugaredLogger {
	ensure()
	mu.Lock()
	defer mu.Unlock()
	return root.Named(name)
}

// SetDebug switches the level at runtime.
func SetDebug(enable bool) {
	ensure()
	mu.Lock()
	defer mu.Unlock()
	if enable {
		atom.SetLevel(zap.DebugLevel)
		return
	}
	atom.SetLevel(zap.InfoLevel)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

// ResetForTesting tears down the logger state so tests can re-Init.
// This should only be used in tests.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	logger = nil
	root = nil
	once = sync.Once{}
}
