// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
)

// ErrRoundInFlight is returned when a message arrives while the engine is
// still working on the previous one.
var ErrRoundInFlight = errors.New("a round is already in flight")

// ErrNoModels is returned when an engine is constructed without any models.
var ErrNoModels = errors.New("no models selected")

// flushInterval bounds how often the observer is notified per model.
const flushInterval = 50 * time.Millisecond

// Gateway is the transport surface engines need. *gateway.Client satisfies
// it; tests substitute scripted fakes.
type Gateway interface {
	StreamCompletion(ctx context.Context, modelID string, messages []gateway.Message) (<-chan gateway.StreamEvent, error)
	StreamCompletionMulti(ctx context.Context, modelIDs []string, messages []gateway.Message) (<-chan gateway.ModelStreamEvent, error)
}

// Update is one observer notification. Content is the full accumulated
// text for the model so far, not a delta. Final marks the model's last
// update within the phase.
type Update struct {
	Phase   string
	ModelID string
	Content string
	Err     error
	Final   bool
}

// Observer receives throttled progress updates. It may be nil. A slow
// observer delays notifications, never the underlying streams.
type Observer func(Update)

// =============================================================================
// ROUND GATE
// =============================================================================

// gate serializes rounds: an engine owns at most one at a time.
type gate struct {
	mu   sync.Mutex
	busy bool
}

func (g *gate) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrRoundInFlight
	}
	g.busy = true
	return nil
}

func (g *gate) end() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// =============================================================================
// PROGRESS AGGREGATION
// =============================================================================

// result is one model's final outcome within a phase.
type result struct {
	content string
	err     error
}

func (r result) failed() bool { return r.err != nil }

// errorMessagePtr renders a result's error for history storage.
func (r result) errorMessagePtr() *string {
	if r.err == nil {
		return nil
	}
	msg := r.err.Error()
	return &msg
}

type modelState struct {
	content strings.Builder
	err     error
	dirty   bool
	final   bool
}

// progress accumulates per-model streamed content and throttles observer
// notifications. Stream drains append under the mutex and return
// immediately; a separate ticker goroutine flushes dirty models, so
// transport backpressure never depends on observer speed.
type progress struct {
	phase   string
	observe Observer

	mu     sync.Mutex
	states map[string]*modelState

	stop chan struct{}
	done chan struct{}
}

func newProgress(phase string, observe Observer) *progress {
	p := &progress{
		phase:   phase,
		observe: observe,
		states:  make(map[string]*modelState),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *progress) run() {
	defer close(p.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.stop:
			return
		}
	}
}

func (p *progress) state(model string) *modelState {
	s, ok := p.states[model]
	if !ok {
		s = &modelState{}
		p.states[model] = s
	}
	return s
}

func (p *progress) append(model, delta string) {
	p.mu.Lock()
	s := p.state(model)
	s.content.WriteString(delta)
	s.dirty = true
	p.mu.Unlock()
}

func (p *progress) finish(model string) {
	p.mu.Lock()
	s := p.state(model)
	s.final = true
	s.dirty = true
	p.mu.Unlock()
}

func (p *progress) fail(model string, err error) {
	p.mu.Lock()
	s := p.state(model)
	s.err = err
	s.final = true
	s.dirty = true
	p.mu.Unlock()
}

// flush notifies the observer of every dirty model. Updates are delivered
// outside the lock.
func (p *progress) flush() {
	if p.observe == nil {
		return
	}
	p.mu.Lock()
	var updates []Update
	for model, s := range p.states {
		if !s.dirty {
			continue
		}
		s.dirty = false
		updates = append(updates, Update{
			Phase:   p.phase,
			ModelID: model,
			Content: s.content.String(),
			Err:     s.err,
			Final:   s.final,
		})
	}
	p.mu.Unlock()

	for _, u := range updates {
		p.observe(u)
	}
}

// close stops the ticker and performs the guaranteed final flush.
func (p *progress) close() {
	close(p.stop)
	<-p.done
	p.flush()
}

// results snapshots every model's outcome.
func (p *progress) results() map[string]result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]result, len(p.states))
	for model, s := range p.states {
		out[model] = result{content: s.content.String(), err: s.err}
	}
	return out
}

// =============================================================================
// FAN-OUT HELPERS
// =============================================================================

// runPhase streams one identical message set to several models and blocks
// until all are terminal. Results are keyed by model id; a model whose
// stream could not even start is reported as failed, never missing.
func runPhase(ctx context.Context, gw Gateway, phase string, models []string, messages []gateway.Message, observe Observer) (map[string]result, error) {
	p := newProgress(phase, observe)
	defer p.close()

	merged, err := gw.StreamCompletionMulti(ctx, models, messages)
	if err != nil {
		return nil, err
	}
	for ev := range merged {
		applyEvent(p, ev.ModelID, ev.Event)
	}
	return completeResults(p, models), nil
}

// runPhasePerModel is runPhase for phases where every model receives its
// own message set, e.g. review and voting.
func runPhasePerModel(ctx context.Context, gw Gateway, phase string, prompts map[string][]gateway.Message, observe Observer) map[string]result {
	p := newProgress(phase, observe)
	defer p.close()

	var wg sync.WaitGroup
	for model, messages := range prompts {
		wg.Add(1)
		go func(model string, messages []gateway.Message) {
			defer wg.Done()
			stream, err := gw.StreamCompletion(ctx, model, messages)
			if err != nil {
				p.fail(model, err)
				return
			}
			for ev := range stream {
				applyEvent(p, model, ev)
			}
		}(model, messages)
	}
	wg.Wait()

	models := make([]string, 0, len(prompts))
	for model := range prompts {
		models = append(models, model)
	}
	return completeResults(p, models)
}

// runSingle streams one request to one model and blocks until terminal.
func runSingle(ctx context.Context, gw Gateway, phase, model string, messages []gateway.Message, observe Observer) result {
	p := newProgress(phase, observe)
	defer p.close()

	stream, err := gw.StreamCompletion(ctx, model, messages)
	if err != nil {
		p.fail(model, err)
	} else {
		for ev := range stream {
			applyEvent(p, model, ev)
		}
	}
	return completeResults(p, []string{model})[model]
}

func applyEvent(p *progress, model string, ev gateway.StreamEvent) {
	switch ev.Kind {
	case gateway.EventContent:
		p.append(model, ev.Content)
	case gateway.EventDone:
		p.finish(model)
	case gateway.EventFailed:
		p.fail(model, ev.Err)
	}
}

// completeResults guarantees an entry per requested model even if its
// stream produced no events at all.
func completeResults(p *progress, models []string) map[string]result {
	results := p.results()
	for _, model := range models {
		if _, ok := results[model]; !ok {
			results[model] = result{err: errors.New("stream produced no events")}
		}
	}
	return results
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist saves session data through the store. A nil store (sub-rounds,
// tests) is a no-op. Failures are logged and returned; the in-memory round
// stays intact so the caller can retry.
func persist(store *history.Store, log *zap.SugaredLogger, data *history.SessionData) error {
	if store == nil {
		return nil
	}
	if err := store.Save(data); err != nil {
		log.Errorw("failed to persist session", "session", data.Session.ID, "error", err)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
