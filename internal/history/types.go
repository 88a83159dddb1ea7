// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// SESSION METADATA
// =============================================================================

// Session is the metadata block of a session file.
type Session struct {
	ID        string `json:"id"` // UUID v4, doubles as the filename stem
	Title     string `json:"title"`
	Mode      Mode   `json:"mode"`
	Timestamp string `json:"timestamp"`
}

// SessionData is one complete session file.
type SessionData struct {
	Session   Session `json:"session"`
	History   History `json:"history"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// =============================================================================
// SHARED PIECES
// =============================================================================

// Exchange is one user/assistant turn pair, serialized as a two-element
// array for compatibility with existing session files.
type Exchange [2]string

// User returns the user half of the exchange.
func (e Exchange) User() string { return e[0] }

// Assistant returns the assistant half of the exchange.
func (e Exchange) Assistant() string { return e[1] }

// ModelResponse is one model's answer to one message. ErrorMessage is set
// when the model failed; Content then holds whatever arrived before the
// failure.
type ModelResponse struct {
	ModelID      string  `json:"model_id"`
	Content      string  `json:"content"`
	ErrorMessage *string `json:"error_message"`
}

// Failed reports whether this response carries an error.
func (r ModelResponse) Failed() bool { return r.ErrorMessage != nil }

// =============================================================================
// STANDARD MODE
// =============================================================================

// ConversationHistory carries per-model context for follow-up messages.
// SingleModel is used when exactly one model is selected; MultiModel keeps
// an independent thread per model otherwise.
type ConversationHistory struct {
	SingleModel []Exchange            `json:"single_model"`
	MultiModel  map[string][]Exchange `json:"multi_model"`
}

// StandardHistory records standard-mode rounds.
type StandardHistory struct {
	UserMessages   []string            `json:"user_messages"`
	ModelResponses [][]ModelResponse   `json:"model_responses"`
	SelectedModels []string            `json:"selected_models"`
	SystemPrompt   string              `json:"system_prompt"`
	Conversation   ConversationHistory `json:"conversation_history"`
}

// =============================================================================
// PVP MODE
// =============================================================================

// BotResponse is one debater's answer in a PvP round.
type BotResponse struct {
	ModelID      string  `json:"model_id"`
	Content      string  `json:"content"`
	ErrorMessage *string `json:"error_message"`
}

// ModeratorResponse is the moderator's judgment of a PvP round.
type ModeratorResponse struct {
	Content      string  `json:"content"`
	ErrorMessage *string `json:"error_message"`
}

// SystemPrompts holds the PvP role prompts.
type SystemPrompts struct {
	Bot       string `json:"bot"`
	Moderator string `json:"moderator"`
}

// PvPRound is one question answered by both bots, optionally judged.
type PvPRound struct {
	UserMessage       string             `json:"user_message"`
	Bot1Response      BotResponse        `json:"bot1_response"`
	Bot2Response      BotResponse        `json:"bot2_response"`
	ModeratorJudgment *ModeratorResponse `json:"moderator_judgment"`
}

// PvPHistory records PvP-mode rounds.
type PvPHistory struct {
	Rounds         []PvPRound    `json:"rounds"`
	BotModels      []string      `json:"bot_models"`
	ModeratorModel *string       `json:"moderator_model"`
	SystemPrompts  SystemPrompts `json:"system_prompts"`
}

// =============================================================================
// COLLABORATIVE MODE
// =============================================================================

// CollaborativeRound is one question worked through draft, review, and
// consensus phases. FinalConsensus is nil until synthesis completes.
type CollaborativeRound struct {
	UserMessage    string          `json:"user_message"`
	ModelResponses []ModelResponse `json:"model_responses"`
	FinalConsensus *string         `json:"final_consensus"`
}

// CollaborativeHistory records collaborative-mode rounds.
type CollaborativeHistory struct {
	Rounds         []CollaborativeRound `json:"rounds"`
	SelectedModels []string             `json:"selected_models"`
	SystemPrompt   string               `json:"system_prompt"`
}

// =============================================================================
// COMPETITIVE MODE
// =============================================================================

// Phase names a competitive round's progress point. Rounds checkpoint at
// phase boundaries so an interrupted round can resume.
type Phase string

const (
	PhaseProposal Phase = "proposal"
	PhaseVoting   Phase = "voting"
	PhaseTallying Phase = "tallying"
	PhaseComplete Phase = "complete"
)

// ModelProposal is one contestant's phase-1 answer.
type ModelProposal struct {
	ModelID      string  `json:"model_id"`
	Content      string  `json:"content"`
	ErrorMessage *string `json:"error_message"`
}

// ModelVote is one contestant's phase-2 ballot. VotedFor is nil when the
// ballot was invalid (no candidate named, or a self-vote); RawResponse is
// always kept for display.
type ModelVote struct {
	VoterID      string  `json:"voter_id"`
	VotedFor     *string `json:"voted_for"`
	RawResponse  string  `json:"raw_response"`
	ErrorMessage *string `json:"error_message"`
}

// VoteTally is the aggregated count for one candidate.
type VoteTally struct {
	ModelID   string   `json:"model_id"`
	VoteCount int      `json:"vote_count"`
	Voters    []string `json:"voters"`
}

// PromptTemplates holds the competitive phase prompt templates.
type PromptTemplates struct {
	Proposal string `json:"proposal"`
	Voting   string `json:"voting"`
}

// CompetitiveRound is one question run through proposals, votes and tally.
type CompetitiveRound struct {
	UserQuestion    string          `json:"user_question"`
	Phase1Proposals []ModelProposal `json:"phase1_proposals"`
	Phase2Votes     []ModelVote     `json:"phase2_votes"`
	VoteTallies     []VoteTally     `json:"vote_tallies"`
	Winners         []string        `json:"winners"`
	CurrentPhase    Phase           `json:"current_phase"`
}

// CompetitiveHistory records competitive-mode rounds.
type CompetitiveHistory struct {
	Rounds          []CompetitiveRound `json:"rounds"`
	SelectedModels  []string           `json:"selected_models"`
	PromptTemplates PromptTemplates    `json:"prompt_templates"`
}

// =============================================================================
// LLM CHOICE MODE
// =============================================================================

// LLMChoiceRound records the arbiter's decision and the resulting answer.
// Decision is "collaborate" or "compete".
type LLMChoiceRound struct {
	UserMessage string  `json:"user_message"`
	Decision    string  `json:"decision"`
	Content     *string `json:"content"`
}

// LLMChoiceHistory records LLM's-Choice-mode rounds.
type LLMChoiceHistory struct {
	Rounds         []LLMChoiceRound `json:"rounds"`
	SelectedModels []string         `json:"selected_models"`
}

// =============================================================================
// TAGGED UNION
// =============================================================================

// History is the mode-tagged union stored in a session file. Exactly one
// variant pointer matching Mode is non-nil.
type History struct {
	Mode          Mode
	Standard      *StandardHistory
	PvP           *PvPHistory
	Collaborative *CollaborativeHistory
	Competitive   *CompetitiveHistory
	LLMChoice     *LLMChoiceHistory
}

// NewStandardHistory builds an empty standard history.
func NewStandardHistory(selectedModels []string, systemPrompt string) History {
	return History{Mode: ModeStandard, Standard: &StandardHistory{
		SelectedModels: selectedModels,
		SystemPrompt:   systemPrompt,
		Conversation: ConversationHistory{
			MultiModel: make(map[string][]Exchange),
		},
	}}
}

// NewPvPHistory builds an empty PvP history.
func NewPvPHistory(botModels []string, moderatorModel *string, prompts SystemPrompts) History {
	return History{Mode: ModePvP, PvP: &PvPHistory{
		BotModels:      botModels,
		ModeratorModel: moderatorModel,
		SystemPrompts:  prompts,
	}}
}

// NewCollaborativeHistory builds an empty collaborative history.
func NewCollaborativeHistory(selectedModels []string, systemPrompt string) History {
	return History{Mode: ModeCollaborative, Collaborative: &CollaborativeHistory{
		SelectedModels: selectedModels,
		SystemPrompt:   systemPrompt,
	}}
}

// NewCompetitiveHistory builds an empty competitive history.
func NewCompetitiveHistory(selectedModels []string, templates PromptTemplates) History {
	return History{Mode: ModeCompetitive, Competitive: &CompetitiveHistory{
		SelectedModels:  selectedModels,
		PromptTemplates: templates,
	}}
}

// NewLLMChoiceHistory builds an empty LLM's-Choice history.
func NewLLMChoiceHistory(selectedModels []string) History {
	return History{Mode: ModeLLMChoice, LLMChoice: &LLMChoiceHistory{
		SelectedModels: selectedModels,
	}}
}

// payload returns the active variant.
func (h History) payload() (any, error) {
	switch h.Mode {
	case ModeStandard:
		if h.Standard != nil {
			return h.Standard, nil
		}
	case ModePvP:
		if h.PvP != nil {
			return h.PvP, nil
		}
	case ModeCollaborative:
		if h.Collaborative != nil {
			return h.Collaborative, nil
		}
	case ModeCompetitive:
		if h.Competitive != nil {
			return h.Competitive, nil
		}
	case ModeLLMChoice:
		if h.LLMChoice != nil {
			return h.LLMChoice, nil
		}
	}
	return nil, fmt.Errorf("history has no payload for mode %q", h.Mode.ID())
}

// MarshalJSON flattens the active variant and injects the "mode" tag.
func (h History) MarshalJSON() ([]byte, error) {
	payload, err := h.payload()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(h.Mode.ID())
	if err != nil {
		return nil, err
	}
	fields["mode"] = tag
	return json.Marshal(fields)
}

// UnmarshalJSON reads the "mode" tag and decodes the matching variant.
func (h *History) UnmarshalJSON(data []byte) error {
	var tag struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	mode, ok := ParseMode(tag.Mode)
	if !ok {
		return fmt.Errorf("unknown history mode %q", tag.Mode)
	}

	*h = History{Mode: mode}
	switch mode {
	case ModeStandard:
		h.Standard = &StandardHistory{}
		return json.Unmarshal(data, h.Standard)
	case ModePvP:
		h.PvP = &PvPHistory{}
		return json.Unmarshal(data, h.PvP)
	case ModeCollaborative:
		h.Collaborative = &CollaborativeHistory{}
		return json.Unmarshal(data, h.Collaborative)
	case ModeCompetitive:
		h.Competitive = &CompetitiveHistory{}
		return json.Unmarshal(data, h.Competitive)
	case ModeLLMChoice:
		h.LLMChoice = &LLMChoiceHistory{}
		return json.Unmarshal(data, h.LLMChoice)
	default:
		return fmt.Errorf("unknown history mode %q", tag.Mode)
	}
}
