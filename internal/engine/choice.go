// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
	"github.com/jeranaias/gtllm/internal/logging"
)

// PhaseDecision is the arbiter consultation phase of an LLM's-choice round.
const PhaseDecision = "decision"

// Decision values recorded in LLM's-choice rounds.
const (
	DecisionCollaborate = "collaborate"
	DecisionCompete     = "compete"
)

// LLMChoice asks an arbiter model whether the question suits collaboration
// or competition, then runs the chosen protocol over the selected models.
type LLMChoice struct {
	gw      Gateway
	store   *history.Store
	observe Observer
	log     *zap.SugaredLogger
	gate    gate
	models  []string
	arbiter string
	data    *history.SessionData
}

// NewLLMChoice creates an LLM's-choice engine. The first selected model
// arbitrates unless WithArbiter overrides it.
func NewLLMChoice(gw Gateway, store *history.Store, models []string, observe Observer) (*LLMChoice, error) {
	if len(models) < 2 {
		return nil, ErrNoModels
	}
	return &LLMChoice{
		gw:      gw,
		store:   store,
		observe: observe,
		log:     logging.New("engine.choice"),
		models:  models,
		arbiter: models[0],
	}, nil
}

// WithArbiter designates which model makes the protocol decision.
func (e *LLMChoice) WithArbiter(model string) *LLMChoice {
	e.arbiter = model
	return e
}

// Session returns the session data accumulated so far, nil before the
// first message.
func (e *LLMChoice) Session() *history.SessionData { return e.data }

// Send consults the arbiter, dispatches the round through the chosen
// protocol, and persists the decision and final content.
func (e *LLMChoice) Send(ctx context.Context, message string) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	if e.data == nil {
		session := history.NewSession(history.ModeLLMChoice, message)
		e.data = history.NewSessionData(session, history.NewLLMChoiceHistory(e.models))
	}

	decision := e.decide(ctx, message)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var content *string
	var err error
	switch decision {
	case DecisionCompete:
		content, err = e.runCompetitive(ctx, message)
	default:
		content, err = e.runCollaborative(ctx, message)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	e.data.History.LLMChoice.Rounds = append(e.data.History.LLMChoice.Rounds, history.LLMChoiceRound{
		UserMessage: message,
		Decision:    decision,
		Content:     content,
	})
	return persist(e.store, e.log, e.data)
}

// decide asks the arbiter to pick a protocol. The arbiter's text is
// matched the same way ballots are: earliest occurrence of either keyword
// wins. An unreadable or failed decision falls back to collaboration.
func (e *LLMChoice) decide(ctx context.Context, message string) string {
	prompt := expandTemplate(ChoiceDecisionTemplate, map[string]string{
		"user_question": message,
	})
	r := runSingle(ctx, e.gw, PhaseDecision, e.arbiter, []gateway.Message{gateway.NewUserMessage(prompt)}, e.observe)
	if r.failed() {
		e.log.Warnw("arbiter failed, defaulting to collaboration", "model", e.arbiter, "error", r.err)
		return DecisionCollaborate
	}

	lower := strings.ToLower(r.content)
	collab := strings.Index(lower, DecisionCollaborate)
	compete := strings.Index(lower, DecisionCompete)
	switch {
	case compete >= 0 && (collab < 0 || compete < collab):
		return DecisionCompete
	case collab >= 0:
		return DecisionCollaborate
	default:
		e.log.Debugw("arbiter gave no readable decision, defaulting to collaboration", "response", r.content)
		return DecisionCollaborate
	}
}

// runCollaborative executes a collaborative sub-round without its own
// session, returning the consensus answer.
func (e *LLMChoice) runCollaborative(ctx context.Context, message string) (*string, error) {
	sub, err := NewCollaborative(e.gw, nil, e.models, "", e.observe)
	if err != nil {
		return nil, err
	}
	round, err := sub.runRound(ctx, message)
	if err != nil {
		return nil, err
	}
	return round.FinalConsensus, nil
}

// runCompetitive executes a competitive sub-round without its own session,
// returning the top winner's proposal.
func (e *LLMChoice) runCompetitive(ctx context.Context, message string) (*string, error) {
	sub, err := NewCompetitive(e.gw, nil, e.models, history.PromptTemplates{}, e.observe)
	if err != nil {
		return nil, err
	}
	round := history.CompetitiveRound{
		UserQuestion: message,
		CurrentPhase: history.PhaseProposal,
	}
	if err := sub.advance(ctx, &round); err != nil {
		return nil, err
	}
	if len(round.Winners) == 0 {
		return nil, nil
	}
	for _, proposal := range round.Phase1Proposals {
		if proposal.ModelID == round.Winners[0] && proposal.ErrorMessage == nil {
			content := proposal.Content
			return &content, nil
		}
	}
	return nil, nil
}
