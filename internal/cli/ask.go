// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - "gtllm ask" runs one round of the selected chat mode and
// prints the outcome.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jeranaias/gtllm/internal/engine"
	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
	"github.com/jeranaias/gtllm/internal/logging"
	"github.com/jeranaias/gtllm/internal/settings"
)

// HandleAsk handles the "ask" command.
func HandleAsk(args Args) error {
	if args.Query == "" {
		return errors.New("ask requires a question")
	}

	s := settings.Global()
	if !s.HasAPIKey() {
		return errors.New("no API key configured; run: gtllm config set-key YOUR_KEY")
	}
	logging.Init(args.Verbose)
	defer logging.Sync()

	client := gateway.New(s.APIKey())
	store, err := history.NewStore()
	if err != nil {
		return err
	}

	// Ctrl-C cancels the in-flight round. Competitive rounds resume from
	// their last checkpoint on the next run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &progressPrinter{quiet: args.Quiet}

	switch args.Mode {
	case "standard", "":
		return askStandard(ctx, args, client, store, p)
	case "pvp":
		return askPvP(ctx, args, client, store, p)
	case "collaborative":
		return askCollaborative(ctx, args, client, store, p)
	case "competitive":
		return askCompetitive(ctx, args, client, store, p)
	case "llm_choice", "llm-choice":
		return askLLMChoice(ctx, args, client, store, p)
	default:
		return fmt.Errorf("unknown mode %q", args.Mode)
	}
}

func askStandard(ctx context.Context, args Args, client *gateway.Client, store *history.Store, p *progressPrinter) error {
	models := args.Models
	var resumed *history.SessionData
	if args.SessionID != "" {
		data, err := store.Load(args.SessionID)
		if err != nil {
			return err
		}
		if data.Session.Mode != history.ModeStandard {
			return fmt.Errorf("session %s is a %s session, not standard", args.SessionID, data.Session.Mode.ID())
		}
		resumed = data
		if len(models) == 0 {
			models = data.History.Standard.SelectedModels
		}
	}
	if len(models) == 0 {
		return errors.New("ask requires --models")
	}

	eng, err := engine.NewStandard(client, store, models, args.System, p.observe)
	if err != nil {
		return err
	}
	if resumed != nil {
		eng.Resume(resumed)
	}
	if err := eng.Send(ctx, args.Query); err != nil {
		return err
	}

	h := eng.Session().History.Standard
	responses := h.ModelResponses[len(h.ModelResponses)-1]
	for _, r := range responses {
		printModelHeading(r.ModelID)
		if r.Failed() {
			fmt.Printf("  error: %s\n", *r.ErrorMessage)
			continue
		}
		printMarkdown(r.Content)
	}
	printSessionFooter(eng.Session())
	return nil
}

func askPvP(ctx context.Context, args Args, client *gateway.Client, store *history.Store, p *progressPrinter) error {
	if len(args.Models) != 2 {
		return errors.New("pvp mode needs exactly two --models")
	}
	var moderator *string
	if args.Moderator != "" {
		moderator = &args.Moderator
	}

	eng, err := engine.NewPvP(client, store, args.Models[0], args.Models[1], moderator, history.SystemPrompts{Bot: args.System}, p.observe)
	if err != nil {
		return err
	}
	if err := eng.Send(ctx, args.Query); err != nil {
		return err
	}

	rounds := eng.Session().History.PvP.Rounds
	round := rounds[len(rounds)-1]
	printBotResponse(args.Models[0], round.Bot1Response)
	printBotResponse(args.Models[1], round.Bot2Response)
	if round.ModeratorJudgment != nil {
		printModelHeading("judgment by " + args.Moderator)
		if round.ModeratorJudgment.ErrorMessage != nil {
			fmt.Printf("  error: %s\n", *round.ModeratorJudgment.ErrorMessage)
		} else {
			printMarkdown(round.ModeratorJudgment.Content)
		}
	}
	printSessionFooter(eng.Session())
	return nil
}

func askCollaborative(ctx context.Context, args Args, client *gateway.Client, store *history.Store, p *progressPrinter) error {
	if len(args.Models) == 0 {
		return errors.New("ask requires --models")
	}
	eng, err := engine.NewCollaborative(client, store, args.Models, args.System, p.observe)
	if err != nil {
		return err
	}
	if args.Synthesiser != "" {
		eng.WithSynthesiser(args.Synthesiser)
	}
	if err := eng.Send(ctx, args.Query); err != nil {
		return err
	}

	rounds := eng.Session().History.Collaborative.Rounds
	round := rounds[len(rounds)-1]
	if round.FinalConsensus != nil {
		printModelHeading("consensus")
		printMarkdown(*round.FinalConsensus)
	} else {
		fmt.Println("No consensus reached; every model failed.")
		for _, r := range round.ModelResponses {
			if r.Failed() {
				fmt.Printf("  %s: %s\n", r.ModelID, *r.ErrorMessage)
			}
		}
	}
	printSessionFooter(eng.Session())
	return nil
}

func askCompetitive(ctx context.Context, args Args, client *gateway.Client, store *history.Store, p *progressPrinter) error {
	if len(args.Models) < 2 {
		return errors.New("competitive mode needs at least two --models")
	}
	eng, err := engine.NewCompetitive(client, store, args.Models, history.PromptTemplates{}, p.observe)
	if err != nil {
		return err
	}
	if err := eng.Send(ctx, args.Query); err != nil {
		return err
	}
	printCompetitiveRound(eng.Session())
	printSessionFooter(eng.Session())
	return nil
}

func askLLMChoice(ctx context.Context, args Args, client *gateway.Client, store *history.Store, p *progressPrinter) error {
	if len(args.Models) < 2 {
		return errors.New("llm_choice mode needs at least two --models")
	}
	eng, err := engine.NewLLMChoice(client, store, args.Models, p.observe)
	if err != nil {
		return err
	}
	if args.Arbiter != "" {
		eng.WithArbiter(args.Arbiter)
	}
	if err := eng.Send(ctx, args.Query); err != nil {
		return err
	}

	rounds := eng.Session().History.LLMChoice.Rounds
	round := rounds[len(rounds)-1]
	fmt.Printf("The models chose to %s.\n", round.Decision)
	if round.Content != nil {
		printMarkdown(*round.Content)
	} else {
		fmt.Println("No answer was produced; every model failed.")
	}
	printSessionFooter(eng.Session())
	return nil
}

// printBotResponse prints one PvP contestant's answer or error.
func printBotResponse(model string, r history.BotResponse) {
	printModelHeading(model)
	if r.ErrorMessage != nil {
		fmt.Printf("  error: %s\n", *r.ErrorMessage)
		return
	}
	printMarkdown(r.Content)
}

// printCompetitiveRound prints the latest round's winner, proposal, and
// tallies.
func printCompetitiveRound(data *history.SessionData) {
	rounds := data.History.Competitive.Rounds
	round := rounds[len(rounds)-1]

	if len(round.Winners) == 0 {
		fmt.Println("No winner: no valid ballots were cast.")
	} else {
		fmt.Printf("Winner: %s\n", round.Winners[0])
		if len(round.Winners) > 1 {
			fmt.Printf("Tied with: %v\n", round.Winners[1:])
		}
		for _, proposal := range round.Phase1Proposals {
			if proposal.ModelID == round.Winners[0] && proposal.ErrorMessage == nil {
				printMarkdown(proposal.Content)
			}
		}
	}

	fmt.Println("\nVotes:")
	for _, tally := range round.VoteTallies {
		fmt.Printf("  %-40s %d\n", tally.ModelID, tally.VoteCount)
	}
}

// printSessionFooter tells the user how to get back to this session.
func printSessionFooter(data *history.SessionData) {
	if data != nil {
		fmt.Printf("\nSession saved: %s\n", data.Session.ID)
	}
}

// =============================================================================
// STREAMING PROGRESS
// =============================================================================

// progressPrinter reports per-model streaming progress on stderr so it
// never mixes with piped results on stdout.
type progressPrinter struct {
	quiet bool
	mu    sync.Mutex
}

func (p *progressPrinter) observe(u engine.Update) {
	if p.quiet || !u.Final {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.Err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %s failed: %v\n", u.Phase, u.ModelID, u.Err)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s done (%d chars)\n", u.Phase, u.ModelID, len(u.Content))
}
