// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - "gtllm sessions" subcommand handlers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/gtllm/internal/engine"
	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
	"github.com/jeranaias/gtllm/internal/logging"
	"github.com/jeranaias/gtllm/internal/settings"
)

// HandleSessions dispatches the "sessions" subcommands.
func HandleSessions(args Args) error {
	logging.Init(args.Verbose)
	defer logging.Sync()

	store, err := history.NewStore()
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "list", "ls", "l":
		return sessionsList(store)
	case "show":
		return sessionsShow(store, args)
	case "resume":
		return sessionsResume(store, args)
	case "delete", "rm":
		return sessionsDelete(store, args)
	default:
		return fmt.Errorf("unknown sessions subcommand %q", args.Subcommand)
	}
}

func sessionsList(store *history.Store) error {
	sessions, err := store.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}

	fmt.Printf("%-36s  %-14s  %-14s  %s\n", "ID", "MODE", "UPDATED", "TITLE")
	for _, data := range sessions {
		fmt.Printf("%-36s  %-14s  %-14s  %s\n",
			data.Session.ID,
			data.Session.Mode.ID(),
			history.FormatTimestampDisplay(data.UpdatedAt),
			data.Session.Title)
	}
	return nil
}

func sessionsShow(store *history.Store, args Args) error {
	if len(args.Raw) == 0 {
		return errors.New("sessions show requires a session id")
	}
	data, err := store.Load(args.Raw[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", data.Session.Title, data.Session.Mode.Name())
	fmt.Printf("Created %s, updated %s\n",
		history.FormatTimestampDisplay(data.CreatedAt),
		history.FormatTimestampDisplay(data.UpdatedAt))

	switch data.Session.Mode {
	case history.ModeStandard:
		showStandard(data.History.Standard)
	case history.ModePvP:
		showPvP(data.History.PvP)
	case history.ModeCollaborative:
		showCollaborative(data.History.Collaborative)
	case history.ModeCompetitive:
		showCompetitive(data.History.Competitive)
	case history.ModeLLMChoice:
		showLLMChoice(data.History.LLMChoice)
	}
	return nil
}

func showStandard(h *history.StandardHistory) {
	for i, message := range h.UserMessages {
		fmt.Printf("\n> %s\n", message)
		if i >= len(h.ModelResponses) {
			continue
		}
		for _, r := range h.ModelResponses[i] {
			printModelHeading(r.ModelID)
			if r.Failed() {
				fmt.Printf("  error: %s\n", *r.ErrorMessage)
				continue
			}
			printMarkdown(r.Content)
		}
	}
}

func showPvP(h *history.PvPHistory) {
	for _, round := range h.Rounds {
		fmt.Printf("\n> %s\n", round.UserMessage)
		printBotResponse(round.Bot1Response.ModelID, round.Bot1Response)
		printBotResponse(round.Bot2Response.ModelID, round.Bot2Response)
		if round.ModeratorJudgment != nil && round.ModeratorJudgment.ErrorMessage == nil {
			printModelHeading("judgment")
			printMarkdown(round.ModeratorJudgment.Content)
		}
	}
}

func showCollaborative(h *history.CollaborativeHistory) {
	for _, round := range h.Rounds {
		fmt.Printf("\n> %s\n", round.UserMessage)
		if round.FinalConsensus != nil {
			printModelHeading("consensus")
			printMarkdown(*round.FinalConsensus)
		} else {
			fmt.Println("  (no consensus)")
		}
	}
}

func showCompetitive(h *history.CompetitiveHistory) {
	for _, round := range h.Rounds {
		fmt.Printf("\n> %s\n", round.UserQuestion)
		if round.CurrentPhase != history.PhaseComplete {
			fmt.Printf("  incomplete round, stopped at %s (run: gtllm sessions resume)\n", round.CurrentPhase)
			continue
		}
		if len(round.Winners) == 0 {
			fmt.Println("  no winner")
			continue
		}
		fmt.Printf("  winner: %s\n", round.Winners[0])
		for _, proposal := range round.Phase1Proposals {
			if proposal.ModelID == round.Winners[0] && proposal.ErrorMessage == nil {
				printMarkdown(proposal.Content)
			}
		}
	}
}

func showLLMChoice(h *history.LLMChoiceHistory) {
	for _, round := range h.Rounds {
		fmt.Printf("\n> %s\n", round.UserMessage)
		fmt.Printf("  decision: %s\n", round.Decision)
		if round.Content != nil {
			printMarkdown(*round.Content)
		}
	}
}

// sessionsResume finishes a competitive round that was interrupted
// mid-phase, picking up from the last persisted checkpoint.
func sessionsResume(store *history.Store, args Args) error {
	if len(args.Raw) == 0 {
		return errors.New("sessions resume requires a session id")
	}
	data, err := store.Load(args.Raw[0])
	if err != nil {
		return err
	}
	if data.Session.Mode != history.ModeCompetitive {
		return fmt.Errorf("session %s is a %s session; only competitive rounds checkpoint", data.Session.ID, data.Session.Mode.ID())
	}

	s := settings.Global()
	if !s.HasAPIKey() {
		return errors.New("no API key configured; run: gtllm config set-key YOUR_KEY")
	}
	client := gateway.New(s.APIKey())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &progressPrinter{quiet: args.Quiet}
	eng, err := engine.NewCompetitive(client, store, data.History.Competitive.SelectedModels, data.History.Competitive.PromptTemplates, p.observe)
	if err != nil {
		return err
	}
	if err := eng.Resume(ctx, data); err != nil {
		return err
	}
	printCompetitiveRound(data)
	return nil
}

func sessionsDelete(store *history.Store, args Args) error {
	if len(args.Raw) == 0 {
		return errors.New("sessions delete requires a session id")
	}
	if err := store.Delete(args.Raw[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args.Raw[0])
	return nil
}
