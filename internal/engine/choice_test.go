// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/gtllm/internal/history"
)

func TestLLMChoiceCompeteFlow(t *testing.T) {
	gw := newFakeGateway()
	// Arbiter decision, then a full competitive sub-round.
	gw.reply("m1", "compete")
	gw.reply("m1", "alpha answer")
	gw.reply("m2", "beta answer")
	gw.reply("m1", "m2 wins")
	gw.reply("m2", "I abstain")

	store := history.NewStoreAt(t.TempDir())
	eng, err := NewLLMChoice(gw, store, []string{"m1", "m2"}, nil)
	if err != nil {
		t.Fatalf("NewLLMChoice failed: %v", err)
	}
	if err := eng.Send(context.Background(), "which is faster?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	rounds := eng.Session().History.LLMChoice.Rounds
	if len(rounds) != 1 {
		t.Fatalf("rounds = %d", len(rounds))
	}
	if rounds[0].Decision != DecisionCompete {
		t.Errorf("decision = %q", rounds[0].Decision)
	}
	// m2 won on m1's ballot; m2's self-less abstention counted for nobody.
	if rounds[0].Content == nil || *rounds[0].Content != "beta answer" {
		t.Errorf("content = %v", rounds[0].Content)
	}

	// The arbiter prompt asked for a one-word protocol decision.
	decisionCall := gw.callsFor("m1")[0]
	text := messageText(decisionCall.messages)
	if !strings.Contains(text, "collaborate or compete") || !strings.Contains(text, "which is faster?") {
		t.Errorf("decision prompt = %q", text)
	}

	loaded, err := store.Load(eng.Session().Session.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.History.LLMChoice.Rounds) != 1 || loaded.History.LLMChoice.Rounds[0].Decision != DecisionCompete {
		t.Errorf("persisted rounds = %+v", loaded.History.LLMChoice.Rounds)
	}
}

func TestLLMChoiceCollaborateFlow(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m1", "Let's collaborate on this one!")
	// Collaborative sub-round: drafts, cross-reviews, then m1 synthesizes.
	gw.reply("m1", "draft one")
	gw.reply("m2", "draft two")
	gw.reply("m1", "review of two")
	gw.reply("m2", "review of one")
	gw.reply("m1", "the joint answer")

	eng, _ := NewLLMChoice(gw, nil, []string{"m1", "m2"}, nil)
	if err := eng.Send(context.Background(), "explain monads"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	round := eng.Session().History.LLMChoice.Rounds[0]
	if round.Decision != DecisionCollaborate {
		t.Errorf("decision = %q", round.Decision)
	}
	if round.Content == nil || *round.Content != "the joint answer" {
		t.Errorf("content = %v", round.Content)
	}
	if calls := gw.callsFor("m1"); len(calls) != 4 {
		t.Errorf("m1 calls = %d, want decision+draft+review+synthesis", len(calls))
	}
	if calls := gw.callsFor("m2"); len(calls) != 2 {
		t.Errorf("m2 calls = %d, want draft+review", len(calls))
	}
}

func TestLLMChoiceEarliestKeywordWins(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m1", "They should compete here rather than collaborate.")
	gw.reply("m1", "a1")
	gw.reply("m2", "a2")
	gw.reply("m1", "m2")
	gw.reply("m2", "m1")

	eng, _ := NewLLMChoice(gw, nil, []string{"m1", "m2"}, nil)
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := eng.Session().History.LLMChoice.Rounds[0].Decision; got != DecisionCompete {
		t.Errorf("decision = %q, want compete from earliest keyword", got)
	}
}

func TestLLMChoiceUnreadableDecisionFallsBackToCollaborate(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m1", "42")
	gw.reply("m1", "draft one")
	gw.reply("m2", "draft two")
	gw.reply("m1", "review")
	gw.reply("m2", "review")
	gw.reply("m1", "consensus")

	eng, _ := NewLLMChoice(gw, nil, []string{"m1", "m2"}, nil)
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := eng.Session().History.LLMChoice.Rounds[0].Decision; got != DecisionCollaborate {
		t.Errorf("decision = %q", got)
	}
}

func TestLLMChoiceArbiterFailureFallsBackToCollaborate(t *testing.T) {
	gw := newFakeGateway()
	gw.replyError("m1", errors.New("arbiter offline"))
	gw.reply("m1", "draft one")
	gw.reply("m2", "draft two")
	gw.reply("m1", "review")
	gw.reply("m2", "review")
	gw.reply("m1", "consensus")

	eng, _ := NewLLMChoice(gw, nil, []string{"m1", "m2"}, nil)
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	round := eng.Session().History.LLMChoice.Rounds[0]
	if round.Decision != DecisionCollaborate {
		t.Errorf("decision = %q", round.Decision)
	}
	if round.Content == nil || *round.Content != "consensus" {
		t.Errorf("content = %v", round.Content)
	}
}

func TestLLMChoiceCustomArbiter(t *testing.T) {
	gw := newFakeGateway()
	gw.reply("m2", "collaborate")
	gw.reply("m1", "draft one")
	gw.reply("m2", "draft two")
	gw.reply("m1", "review")
	gw.reply("m2", "review")
	gw.reply("m1", "consensus")

	eng, _ := NewLLMChoice(gw, nil, []string{"m1", "m2"}, nil)
	eng.WithArbiter("m2")
	if err := eng.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// m2 made the decision and took part in the round.
	if calls := gw.callsFor("m2"); len(calls) != 3 {
		t.Errorf("m2 calls = %d, want decision+draft+review", len(calls))
	}
}

func TestNewLLMChoiceRequiresTwoModels(t *testing.T) {
	if _, err := NewLLMChoice(newFakeGateway(), nil, []string{"solo"}, nil); !errors.Is(err, ErrNoModels) {
		t.Errorf("expected ErrNoModels, got %v", err)
	}
}
