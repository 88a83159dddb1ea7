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

// PhaseResponse is the single phase of a standard round.
const PhaseResponse = "response"

// Standard fans each user message to every selected model independently.
// Models keep separate conversation threads; one model's answer never
// leaks into another's context.
type Standard struct {
	gw           Gateway
	store        *history.Store
	observe      Observer
	log          *zap.SugaredLogger
	gate         gate
	models       []string
	systemPrompt string
	data         *history.SessionData
}

// NewStandard creates a standard-mode engine for the given models.
func NewStandard(gw Gateway, store *history.Store, models []string, systemPrompt string, observe Observer) (*Standard, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	return &Standard{
		gw:           gw,
		store:        store,
		observe:      observe,
		log:          logging.New("engine.standard"),
		models:       models,
		systemPrompt: systemPrompt,
	}, nil
}

// Session returns the session data accumulated so far, nil before the
// first message.
func (e *Standard) Session() *history.SessionData { return e.data }

// Resume attaches the engine to a previously saved session.
func (e *Standard) Resume(data *history.SessionData) {
	e.data = data
	if h := data.History.Standard; h != nil && len(h.SelectedModels) > 0 {
		e.models = h.SelectedModels
		e.systemPrompt = h.SystemPrompt
	}
}

// Send runs one round: stream the message to every model, append the
// results, and persist. Partial state is discarded when ctx is cancelled.
func (e *Standard) Send(ctx context.Context, message string) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	if e.data == nil {
		session := history.NewSession(history.ModeStandard, message)
		e.data = history.NewSessionData(session, history.NewStandardHistory(e.models, e.systemPrompt))
	}
	h := e.data.History.Standard

	prompts := make(map[string][]gateway.Message, len(e.models))
	for _, model := range e.models {
		prompts[model] = e.buildMessages(h, model, message)
	}

	results := runPhasePerModel(ctx, e.gw, PhaseResponse, prompts, e.observe)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	responses := make([]history.ModelResponse, 0, len(e.models))
	for _, model := range e.models {
		r := results[model]
		resp := history.ModelResponse{ModelID: model, ErrorMessage: r.errorMessagePtr()}
		if !r.failed() {
			resp.Content = r.content
		}
		responses = append(responses, resp)
	}

	h.UserMessages = append(h.UserMessages, message)
	h.ModelResponses = append(h.ModelResponses, responses)
	e.updateConversation(h, message, results)

	return persist(e.store, e.log, e.data)
}

// buildMessages assembles a model's request: system prompt, that model's
// own prior exchanges, then the new message.
func (e *Standard) buildMessages(h *history.StandardHistory, model, message string) []gateway.Message {
	var messages []gateway.Message
	if e.systemPrompt != "" {
		messages = append(messages, gateway.NewSystemMessage(e.systemPrompt))
	}

	var exchanges []history.Exchange
	if len(e.models) == 1 {
		exchanges = h.Conversation.SingleModel
	} else {
		exchanges = h.Conversation.MultiModel[model]
	}
	for _, ex := range exchanges {
		messages = append(messages,
			gateway.NewUserMessage(ex.User()),
			gateway.NewAssistantMessage(ex.Assistant()))
	}

	return append(messages, gateway.NewUserMessage(message))
}

// updateConversation records successful exchanges in the per-model
// context so follow-ups see them. Failed models gain no context.
func (e *Standard) updateConversation(h *history.StandardHistory, message string, results map[string]result) {
	if len(e.models) == 1 {
		if r := results[e.models[0]]; !r.failed() {
			h.Conversation.SingleModel = append(h.Conversation.SingleModel, history.Exchange{message, r.content})
		}
		return
	}
	if h.Conversation.MultiModel == nil {
		h.Conversation.MultiModel = make(map[string][]history.Exchange)
	}
	for _, model := range e.models {
		if r := results[model]; !r.failed() {
			h.Conversation.MultiModel[model] = append(h.Conversation.MultiModel[model], history.Exchange{message, r.content})
		}
	}
}
