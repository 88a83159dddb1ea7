// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/gtllm/internal/history"
)

func TestStandardRoundWithMixedOutcomes(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("a/x", "Hel", "lo")
	gw.replyError("b/y", fmt.Errorf("OpenRouter error (HTTP 429): rate limited"))

	store := history.NewStoreAt(t.TempDir())
	eng, err := NewStandard(gw, store, []string{"a/x", "b/y"}, "", nil)
	if err != nil {
		t.Fatalf("NewStandard failed: %v", err)
	}
	if err := eng.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	h := eng.Session().History.Standard
	if len(h.ModelResponses) != 1 || len(h.ModelResponses[0]) != 2 {
		t.Fatalf("unexpected round shape: %+v", h.ModelResponses)
	}

	first, second := h.ModelResponses[0][0], h.ModelResponses[0][1]
	if first.ModelID != "a/x" || first.Content != "Hello" || first.ErrorMessage != nil {
		t.Errorf("first response = %+v", first)
	}
	if second.ModelID != "b/y" || second.Content != "" {
		t.Errorf("second response = %+v", second)
	}
	if second.ErrorMessage == nil || !strings.Contains(*second.ErrorMessage, "429") {
		t.Errorf("second error = %v", second.ErrorMessage)
	}

	// The round survives a reload.
	loaded, err := store.Load(eng.Session().Session.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.History.Standard.ModelResponses[0][0].Content != "Hello" {
		t.Error("persisted round differs from in-memory round")
	}
	if loaded.Session.Mode != history.ModeStandard {
		t.Errorf("session mode = %v", loaded.Session.Mode)
	}
}

func TestStandardSessionTitleFromFirstMessage(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m", "ok")

	eng, _ := NewStandard(gw, nil, []string{"m"}, "", nil)
	msg := "Explain the lambda calculus in plain English please thanks kindly"
	if err := eng.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	title := eng.Session().Session.Title
	if len(title) > 63 {
		t.Errorf("title too long: %d bytes", len(title))
	}
	if !strings.HasSuffix(title, "...") {
		t.Errorf("long title must end with ellipsis: %q", title)
	}
}

func TestStandardConversationContextPerModel(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("a", "alpha answer")
	gw.reply("b", "beta answer")
	gw.reply("a", "alpha follow-up")
	gw.reply("b", "beta follow-up")

	eng, _ := NewStandard(gw, nil, []string{"a", "b"}, "stay brief", nil)
	ctx := context.Background()
	if err := eng.Send(ctx, "first"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := eng.Send(ctx, "second"); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	// Model a's second call sees its own prior answer, never b's.
	calls := gw.callsFor("a")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls to a, got %d", len(calls))
	}
	text := messageText(calls[1].messages)
	if !strings.Contains(text, "alpha answer") {
		t.Errorf("follow-up lacks own context: %q", text)
	}
	if strings.Contains(text, "beta answer") {
		t.Errorf("context leaked between models: %q", text)
	}
	if !strings.Contains(text, "stay brief") {
		t.Errorf("system prompt missing: %q", text)
	}
}

func TestStandardFailedModelGainsNoContext(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("a", "fine")
	gw.replyError("b", errors.New("down"))

	eng, _ := NewStandard(gw, nil, []string{"a", "b"}, "", nil)
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conv := eng.Session().History.Standard.Conversation
	if len(conv.MultiModel["a"]) != 1 {
		t.Errorf("a context = %+v", conv.MultiModel["a"])
	}
	if len(conv.MultiModel["b"]) != 0 {
		t.Errorf("failed model must gain no context: %+v", conv.MultiModel["b"])
	}
}

func TestStandardRejectsConcurrentSend(t *testing.T) {
	gw := newFakeGateway()
	release := make(chan struct{})
	gw.script("m", stubResponse{chunks: []string{"slow"}, block: release})

	eng, _ := NewStandard(gw, nil, []string{"m"}, "", nil)

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Send(context.Background(), "first") }()

	// Wait until the first round is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for len(gw.callsFor("m")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first round never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := eng.Send(context.Background(), "second"); !errors.Is(err, ErrRoundInFlight) {
		t.Errorf("expected ErrRoundInFlight, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
}

func TestStandardCancellationDiscardsRound(t *testing.T) {
	gw := newFakeGateway()
	gw.script("m", stubResponse{chunks: []string{"partial"}, block: make(chan struct{})})

	dir := t.TempDir()
	store := history.NewStoreAt(dir)
	eng, _ := NewStandard(gw, store, []string{"m"}, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- eng.Send(ctx, "doomed") }()

	deadline := time.Now().Add(2 * time.Second)
	for len(gw.callsFor("m")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("round never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(eng.Session().History.Standard.ModelResponses) != 0 {
		t.Error("cancelled round must not be appended")
	}
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cancelled round must not be persisted, found %d files", len(entries))
	}
}

func TestStandardObserverSeesFinalContent(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m", "streamed ", "in ", "pieces")

	rec := &updateRecorder{}
	eng, _ := NewStandard(gw, nil, []string{"m"}, "", rec.observe)
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	last, ok := rec.lastFor("m")
	if !ok {
		t.Fatal("observer never notified")
	}
	if !last.Final || last.Content != "streamed in pieces" {
		t.Errorf("final update = %+v", last)
	}
	if last.Phase != PhaseResponse {
		t.Errorf("phase = %q", last.Phase)
	}
}

func TestNewStandardRequiresModels(t *testing.T) {
	if _, err := NewStandard(newFakeGateway(), nil, nil, "", nil); !errors.Is(err, ErrNoModels) {
		t.Errorf("expected ErrNoModels, got %v", err)
	}
}
