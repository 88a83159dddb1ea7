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

// Phase names for PvP rounds.
const (
	PhaseBots     = "bots"
	PhaseJudgment = "judgment"
)

// PvP runs two debater models in parallel, then has an optional moderator
// judge the pair. If either debater fails, the moderator is never called
// and the round persists with a nil judgment.
type PvP struct {
	gw        Gateway
	store     *history.Store
	observe   Observer
	log       *zap.SugaredLogger
	gate      gate
	bots      [2]string
	moderator *string
	prompts   history.SystemPrompts
	data      *history.SessionData
}

// NewPvP creates a PvP engine. moderator may be nil for unjudged debates;
// empty prompts fall back to the defaults.
func NewPvP(gw Gateway, store *history.Store, bot1, bot2 string, moderator *string, prompts history.SystemPrompts, observe Observer) (*PvP, error) {
	if bot1 == "" || bot2 == "" {
		return nil, ErrNoModels
	}
	if prompts.Bot == "" {
		prompts.Bot = DefaultBotPrompt
	}
	if prompts.Moderator == "" {
		prompts.Moderator = DefaultModeratorPrompt
	}
	return &PvP{
		gw:        gw,
		store:     store,
		observe:   observe,
		log:       logging.New("engine.pvp"),
		bots:      [2]string{bot1, bot2},
		moderator: moderator,
		prompts:   prompts,
	}, nil
}

// Session returns the session data accumulated so far, nil before the
// first message.
func (e *PvP) Session() *history.SessionData { return e.data }

// Send runs one debate round.
func (e *PvP) Send(ctx context.Context, message string) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	if e.data == nil {
		session := history.NewSession(history.ModePvP, message)
		e.data = history.NewSessionData(session, history.NewPvPHistory(e.bots[:], e.moderator, e.prompts))
	}
	h := e.data.History.PvP

	botMessages := []gateway.Message{
		gateway.NewSystemMessage(e.prompts.Bot),
		gateway.NewUserMessage(message),
	}
	results, err := runPhase(ctx, e.gw, PhaseBots, e.bots[:], botMessages, e.observe)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	round := history.PvPRound{
		UserMessage:  message,
		Bot1Response: e.botResponse(e.bots[0], results),
		Bot2Response: e.botResponse(e.bots[1], results),
	}

	bothSucceeded := !results[e.bots[0]].failed() && !results[e.bots[1]].failed()
	if bothSucceeded && e.moderator != nil {
		round.ModeratorJudgment = e.judge(ctx, message, results)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	h.Rounds = append(h.Rounds, round)
	return persist(e.store, e.log, e.data)
}

func (e *PvP) botResponse(model string, results map[string]result) history.BotResponse {
	r := results[model]
	resp := history.BotResponse{ModelID: model, ErrorMessage: r.errorMessagePtr()}
	if !r.failed() {
		resp.Content = r.content
	}
	return resp
}

// judge streams the moderator's verdict over both bot answers.
func (e *PvP) judge(ctx context.Context, message string, results map[string]result) *history.ModeratorResponse {
	judgePrompt := moderatorJudgmentPrompt(
		message,
		e.bots[0], results[e.bots[0]].content,
		e.bots[1], results[e.bots[1]].content,
	)
	messages := []gateway.Message{
		gateway.NewSystemMessage(e.prompts.Moderator),
		gateway.NewUserMessage(judgePrompt),
	}

	r := runSingle(ctx, e.gw, PhaseJudgment, *e.moderator, messages, e.observe)
	judgment := &history.ModeratorResponse{ErrorMessage: r.errorMessagePtr()}
	if !r.failed() {
		judgment.Content = r.content
	}
	return judgment
}
