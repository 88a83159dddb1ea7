// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"fmt"
)

// Mode selects how the selected models answer a message.
type Mode int

const (
	// ModeStandard sends the message to each model independently.
	ModeStandard Mode = iota
	// ModePvP pits two bots against each other with an optional moderator.
	ModePvP
	// ModeCollaborative has models draft, review, and synthesise together.
	ModeCollaborative
	// ModeCompetitive has models propose answers and vote for the best.
	ModeCompetitive
	// ModeLLMChoice lets an arbiter model pick collaborate or compete.
	ModeLLMChoice
)

// AllModes lists every mode in menu order.
var AllModes = []Mode{ModeStandard, ModePvP, ModeCollaborative, ModeCompetitive, ModeLLMChoice}

// ID returns the stable identifier used in session files.
func (m Mode) ID() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModePvP:
		return "pvp"
	case ModeCollaborative:
		return "collaborative"
	case ModeCompetitive:
		return "competitive"
	case ModeLLMChoice:
		return "llm_choice"
	default:
		return "unknown"
	}
}

// Name returns the display name.
func (m Mode) Name() string {
	switch m {
	case ModeStandard:
		return "Standard"
	case ModePvP:
		return "PvP"
	case ModeCollaborative:
		return "Collaborative"
	case ModeCompetitive:
		return "Competitive"
	case ModeLLMChoice:
		return "LLM's Choice"
	default:
		return "Unknown"
	}
}

// Description returns the one-line menu description.
func (m Mode) Description() string {
	switch m {
	case ModeStandard:
		return "Single LLM chat"
	case ModePvP:
		return "2 bots compete, 1 moderator judges"
	case ModeCollaborative:
		return "Multiple bots jointly agree on best solution"
	case ModeCompetitive:
		return "All bots vote for the best (can't vote for their own)"
	case ModeLLMChoice:
		return "LLMs decide to collaborate or compete"
	default:
		return ""
	}
}

// ParseMode resolves a stable identifier back to a Mode.
func ParseMode(id string) (Mode, bool) {
	for _, m := range AllModes {
		if m.ID() == id {
			return m, true
		}
	}
	return ModeStandard, false
}

// MarshalJSON encodes the mode as its stable identifier.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ID())
}

// UnmarshalJSON decodes a stable identifier.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	parsed, ok := ParseMode(id)
	if !ok {
		return fmt.Errorf("unknown chat mode %q", id)
	}
	*m = parsed
	return nil
}
