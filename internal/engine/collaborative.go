// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
	"github.com/jeranaias/gtllm/internal/logging"
)

// Phase names for collaborative rounds.
const (
	PhaseInitial   = "initial"
	PhaseReview    = "review"
	PhaseConsensus = "consensus"
)

// Collaborative runs three phases per message: every model drafts an
// answer, survivors review each other's drafts, and a designated
// synthesiser fuses drafts and reviews into one consensus answer.
type Collaborative struct {
	gw           Gateway
	store        *history.Store
	observe      Observer
	log          *zap.SugaredLogger
	gate         gate
	models       []string
	synthesiser  string
	systemPrompt string
	data         *history.SessionData
}

// NewCollaborative creates a collaborative engine. The first selected
// model synthesises unless WithSynthesiser overrides it.
func NewCollaborative(gw Gateway, store *history.Store, models []string, systemPrompt string, observe Observer) (*Collaborative, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	return &Collaborative{
		gw:           gw,
		store:        store,
		observe:      observe,
		log:          logging.New("engine.collaborative"),
		models:       models,
		synthesiser:  models[0],
		systemPrompt: systemPrompt,
	}, nil
}

// WithSynthesiser designates which model produces the consensus answer.
func (e *Collaborative) WithSynthesiser(model string) *Collaborative {
	e.synthesiser = model
	return e
}

// Session returns the session data accumulated so far, nil before the
// first message.
func (e *Collaborative) Session() *history.SessionData { return e.data }

// Send runs one collaborative round and persists it.
func (e *Collaborative) Send(ctx context.Context, message string) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	if e.data == nil {
		session := history.NewSession(history.ModeCollaborative, message)
		e.data = history.NewSessionData(session, history.NewCollaborativeHistory(e.models, e.systemPrompt))
	}

	round, err := e.runRound(ctx, message)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	e.data.History.Collaborative.Rounds = append(e.data.History.Collaborative.Rounds, round)
	return persist(e.store, e.log, e.data)
}

// runRound executes the three phases without touching session state, so
// the LLM's-choice engine can reuse it for sub-rounds.
func (e *Collaborative) runRound(ctx context.Context, message string) (history.CollaborativeRound, error) {
	round := history.CollaborativeRound{UserMessage: message}

	// Phase 1: independent drafts.
	initialPrompt := expandTemplate(CollaborativeInitialTemplate, map[string]string{
		"user_question": message,
	})
	drafts, err := runPhase(ctx, e.gw, PhaseInitial, e.models, e.initialMessages(initialPrompt), e.observe)
	if err != nil {
		return round, err
	}
	if ctx.Err() != nil {
		return round, ctx.Err()
	}

	for _, model := range e.models {
		r := drafts[model]
		resp := history.ModelResponse{ModelID: model, ErrorMessage: r.errorMessagePtr()}
		if !r.failed() {
			resp.Content = r.content
		}
		round.ModelResponses = append(round.ModelResponses, resp)
	}

	var survivors []string
	for _, model := range e.models {
		if !drafts[model].failed() {
			survivors = append(survivors, model)
		}
	}
	if len(survivors) == 0 {
		e.log.Warnw("every model failed the draft phase", "message", message)
		return round, nil
	}

	// Phase 2: cross-review, skipped when there is nobody to review.
	reviews := make(map[string]result)
	if len(survivors) >= 2 {
		prompts := make(map[string][]gateway.Message, len(survivors))
		for _, model := range survivors {
			others := make([]string, 0, len(survivors)-1)
			for _, peer := range survivors {
				if peer != model {
					others = append(others, peer)
				}
			}
			reviewPrompt := expandTemplate(CollaborativeReviewTemplate, map[string]string{
				"user_question":   message,
				"other_responses": formatResponses(others, drafts),
			})
			prompts[model] = e.initialMessages(reviewPrompt)
		}
		reviews = runPhasePerModel(ctx, e.gw, PhaseReview, prompts, e.observe)
		if ctx.Err() != nil {
			return round, ctx.Err()
		}
	}

	// Phase 3: synthesis.
	consensusPrompt := expandTemplate(CollaborativeConsensusTemplate, map[string]string{
		"user_question":     message,
		"initial_responses": formatResponses(survivors, drafts),
		"reviews":           formatResponses(survivors, reviews),
	})
	r := runSingle(ctx, e.gw, PhaseConsensus, e.synthesiser, e.initialMessages(consensusPrompt), e.observe)
	if ctx.Err() != nil {
		return round, ctx.Err()
	}
	if r.failed() {
		e.log.Warnw("synthesis failed", "model", e.synthesiser, "error", r.err)
	} else {
		consensus := r.content
		round.FinalConsensus = &consensus
	}
	return round, nil
}

func (e *Collaborative) initialMessages(prompt string) []gateway.Message {
	var messages []gateway.Message
	if e.systemPrompt != "" {
		messages = append(messages, gateway.NewSystemMessage(e.systemPrompt))
	}
	return append(messages, gateway.NewUserMessage(prompt))
}
