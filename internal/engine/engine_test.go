// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/gtllm/internal/gateway"
)

// stubResponse scripts one model call: chunks, then Done, or Failed when
// err is set. A non-nil block channel delays the terminal event.
type stubResponse struct {
	chunks []string
	err    error
	block  chan struct{}
}

type recordedCall struct {
	model    string
	messages []gateway.Message
}

// fakeGateway pops scripted responses per model and records every call.
type fakeGateway struct {
	mu      sync.Mutex
	scripts map[string][]stubResponse
	calls   []recordedCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{scripts: make(map[string][]stubResponse)}
}

func (f *fakeGateway) script(model string, resp stubResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[model] = append(f.scripts[model], resp)
}

func (f *fakeGateway) reply(model string, chunks ...string) {
	f.script(model, stubResponse{chunks: chunks})
}

func (f *fakeGateway) replyError(model string, err error) {
	f.script(model, stubResponse{err: err})
}

func (f *fakeGateway) callsFor(model string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGateway) StreamCompletion(ctx context.Context, model string, messages []gateway.Message) (<-chan gateway.StreamEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{model: model, messages: messages})
	queue := f.scripts[model]
	var resp stubResponse
	if len(queue) > 0 {
		resp = queue[0]
		f.scripts[model] = queue[1:]
	} else {
		resp = stubResponse{err: errors.New("no script for " + model)}
	}
	f.mu.Unlock()

	events := make(chan gateway.StreamEvent, len(resp.chunks)+1)
	go func() {
		defer close(events)
		for _, chunk := range resp.chunks {
			events <- gateway.StreamEvent{Kind: gateway.EventContent, Content: chunk}
		}
		if resp.block != nil {
			select {
			case <-resp.block:
			case <-ctx.Done():
				events <- gateway.StreamEvent{Kind: gateway.EventFailed, Err: ctx.Err()}
				return
			}
		}
		if resp.err != nil {
			events <- gateway.StreamEvent{Kind: gateway.EventFailed, Err: resp.err}
			return
		}
		events <- gateway.StreamEvent{Kind: gateway.EventDone}
	}()
	return events, nil
}

func (f *fakeGateway) StreamCompletionMulti(ctx context.Context, models []string, messages []gateway.Message) (<-chan gateway.ModelStreamEvent, error) {
	merged := make(chan gateway.ModelStreamEvent, 16)
	var wg sync.WaitGroup
	for _, model := range models {
		stream, err := f.StreamCompletion(ctx, model, messages)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(model string, stream <-chan gateway.StreamEvent) {
			defer wg.Done()
			for ev := range stream {
				merged <- gateway.ModelStreamEvent{ModelID: model, Event: ev}
			}
		}(model, stream)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged, nil
}

// updateRecorder collects observer updates for assertions.
type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) observe(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *updateRecorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *updateRecorder) lastFor(model string) (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].ModelID == model {
			return r.updates[i], true
		}
	}
	return Update{}, false
}

func messageText(messages []gateway.Message) string {
	var parts []string
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// RUNTIME TESTS
// =============================================================================

func TestGateRejectsConcurrentRounds(t *testing.T) {
	var g gate
	if err := g.begin(); err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	if err := g.begin(); !errors.Is(err, ErrRoundInFlight) {
		t.Fatalf("expected ErrRoundInFlight, got %v", err)
	}
	g.end()
	if err := g.begin(); err != nil {
		t.Fatalf("begin after end failed: %v", err)
	}
}

func TestProgressFinalFlushAlwaysDelivered(t *testing.T) {
	rec := &updateRecorder{}
	p := newProgress("test", rec.observe)

	p.append("m", "partial ")
	p.append("m", "answer")
	p.finish("m")
	p.close()

	last, ok := rec.lastFor("m")
	if !ok {
		t.Fatal("no updates delivered")
	}
	if !last.Final {
		t.Error("last update must be final")
	}
	if last.Content != "partial answer" {
		t.Errorf("final content = %q", last.Content)
	}
}

func TestProgressThrottlesIntermediateFlushes(t *testing.T) {
	rec := &updateRecorder{}
	p := newProgress("test", rec.observe)

	// Many appends within one flush window collapse into few updates.
	for i := 0; i < 100; i++ {
		p.append("m", "x")
	}
	time.Sleep(flushInterval * 3)
	p.finish("m")
	p.close()

	updates := rec.all()
	if len(updates) == 0 || len(updates) > 5 {
		t.Errorf("expected a handful of coalesced updates, got %d", len(updates))
	}
	last := updates[len(updates)-1]
	if last.Content != strings.Repeat("x", 100) {
		t.Errorf("final content lost appends: %d bytes", len(last.Content))
	}
}

func TestProgressReportsFailures(t *testing.T) {
	rec := &updateRecorder{}
	p := newProgress("test", rec.observe)

	boom := errors.New("boom")
	p.append("m", "partial")
	p.fail("m", boom)
	p.close()

	last, ok := rec.lastFor("m")
	if !ok {
		t.Fatal("no updates delivered")
	}
	if !last.Final || !errors.Is(last.Err, boom) {
		t.Errorf("final update = %+v", last)
	}
}

func TestRunPhaseReturnsEntryPerModel(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("a", "ok")
	gw.replyError("b", errors.New("down"))

	results, err := runPhase(context.Background(), gw, "test", []string{"a", "b"}, nil, nil)
	if err != nil {
		t.Fatalf("runPhase failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results["a"].failed() || results["a"].content != "ok" {
		t.Errorf("a = %+v", results["a"])
	}
	if !results["b"].failed() {
		t.Errorf("b should have failed: %+v", results["b"])
	}
}

func TestExpandTemplate(t *testing.T) {
	got := expandTemplate("Q: {user_question} again {user_question}", map[string]string{
		"user_question": "why",
	})
	if got != "Q: why again why" {
		t.Errorf("expandTemplate = %q", got)
	}
}
