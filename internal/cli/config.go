// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - "gtllm config" subcommand handlers.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/settings"
)

// HandleConfig dispatches the "config" subcommands.
func HandleConfig(args Args) error {
	s := settings.Global()

	switch args.Subcommand {
	case "show":
		return configShow(s)
	case "set-key":
		return configSetKey(s, args.ConfigKey)
	case "clear-key":
		s.ClearAPIKey()
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Println("API key removed.")
		return nil
	case "theme":
		return configTheme(s, args.ConfigKey)
	default:
		return fmt.Errorf("unknown config subcommand %q", args.Subcommand)
	}
}

func configShow(s *settings.Settings) error {
	path, err := settings.Path()
	if err != nil {
		return err
	}

	// SECURITY: never print the key itself, only its fingerprint.
	key := "not set"
	if s.HasAPIKey() {
		key = "set (" + gateway.New(s.APIKey()).KeyFingerprint() + ")"
	}

	fmt.Printf("Settings file: %s\n", path)
	fmt.Printf("API key:       %s\n", key)
	fmt.Printf("Theme:         %s (%s)\n", s.ActiveTheme().ID(), s.ThemeMode)
	return nil
}

func configSetKey(s *settings.Settings, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("config set-key requires the key as an argument")
	}
	s.SetAPIKey(key)
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Println("API key saved.")
	return nil
}

func configTheme(s *settings.Settings, name string) error {
	if name == "" {
		var ids []string
		for _, t := range settings.AllThemes() {
			ids = append(ids, t.ID())
		}
		return fmt.Errorf("config theme requires a name: %s", strings.Join(ids, ", "))
	}
	theme, ok := settings.ParseTheme(name)
	if !ok {
		return fmt.Errorf("unknown theme %q", name)
	}
	s.Theme = theme.ID()
	if theme.IsDark() {
		s.ThemeMode = settings.ModeDark
	} else {
		s.ThemeMode = settings.ModeLight
	}
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Printf("Theme set to %s.\n", theme.ID())
	return nil
}
