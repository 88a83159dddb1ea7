// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/history"
	"github.com/jeranaias/gtllm/internal/logging"
)

// Competitive runs propose-then-vote rounds: every model answers the
// question, then every successful proposer votes for the best proposal
// that is not its own. Phase progress is checkpointed to the store so an
// interrupted round resumes where it stopped.
type Competitive struct {
	gw        Gateway
	store     *history.Store
	observe   Observer
	log       *zap.SugaredLogger
	gate      gate
	models    []string
	templates history.PromptTemplates
	data      *history.SessionData
}

// NewCompetitive creates a competitive engine. Empty templates fall back
// to the defaults.
func NewCompetitive(gw Gateway, store *history.Store, models []string, templates history.PromptTemplates, observe Observer) (*Competitive, error) {
	if len(models) < 2 {
		return nil, ErrNoModels
	}
	if templates.Proposal == "" {
		templates.Proposal = CompetitiveProposalTemplate
	}
	if templates.Voting == "" {
		templates.Voting = CompetitiveVotingTemplate
	}
	return &Competitive{
		gw:        gw,
		store:     store,
		observe:   observe,
		log:       logging.New("engine.competitive"),
		models:    models,
		templates: templates,
	}, nil
}

// Session returns the session data accumulated so far, nil before the
// first message.
func (e *Competitive) Session() *history.SessionData { return e.data }

// Send runs one competitive round to completion, checkpointing each phase
// boundary.
func (e *Competitive) Send(ctx context.Context, message string) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	if e.data == nil {
		session := history.NewSession(history.ModeCompetitive, message)
		e.data = history.NewSessionData(session, history.NewCompetitiveHistory(e.models, e.templates))
	}
	h := e.data.History.Competitive

	h.Rounds = append(h.Rounds, history.CompetitiveRound{
		UserQuestion: message,
		CurrentPhase: history.PhaseProposal,
	})
	return e.advance(ctx, &h.Rounds[len(h.Rounds)-1])
}

// Resume attaches to a saved session and finishes its last round if that
// round was interrupted mid-phase. Completed work is never redone.
func (e *Competitive) Resume(ctx context.Context, data *history.SessionData) error {
	if err := e.gate.begin(); err != nil {
		return err
	}
	defer e.gate.end()

	e.data = data
	h := data.History.Competitive
	if len(h.SelectedModels) > 0 {
		e.models = h.SelectedModels
	}
	if h.PromptTemplates.Proposal != "" {
		e.templates = h.PromptTemplates
	}
	if len(h.Rounds) == 0 {
		return nil
	}
	last := &h.Rounds[len(h.Rounds)-1]
	if last.CurrentPhase == history.PhaseComplete {
		return nil
	}
	e.log.Infow("resuming interrupted round", "session", data.Session.ID, "phase", last.CurrentPhase)
	return e.advance(ctx, last)
}

// advance drives a round from its current phase to completion. The round
// is mutated in place, so checkpoints overwrite rather than duplicate.
func (e *Competitive) advance(ctx context.Context, round *history.CompetitiveRound) error {
	for round.CurrentPhase != history.PhaseComplete {
		var err error
		switch round.CurrentPhase {
		case history.PhaseProposal:
			err = e.runProposals(ctx, round)
		case history.PhaseVoting:
			err = e.runVoting(ctx, round)
		case history.PhaseTallying:
			round.VoteTallies, round.Winners = TallyVotes(proposerIDs(round), round.Phase2Votes)
			round.CurrentPhase = history.PhaseComplete
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := persist(e.store, e.log, e.data); err != nil {
			return err
		}
	}
	return nil
}

func (e *Competitive) runProposals(ctx context.Context, round *history.CompetitiveRound) error {
	prompt := expandTemplate(e.templates.Proposal, map[string]string{
		"user_question": round.UserQuestion,
	})
	messages := []gateway.Message{gateway.NewUserMessage(prompt)}

	results, err := runPhase(ctx, e.gw, string(history.PhaseProposal), e.models, messages, e.observe)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	round.Phase1Proposals = round.Phase1Proposals[:0]
	for _, model := range e.models {
		r := results[model]
		proposal := history.ModelProposal{ModelID: model, ErrorMessage: r.errorMessagePtr()}
		if !r.failed() {
			proposal.Content = r.content
		}
		round.Phase1Proposals = append(round.Phase1Proposals, proposal)
	}
	round.CurrentPhase = history.PhaseVoting
	return nil
}

func (e *Competitive) runVoting(ctx context.Context, round *history.CompetitiveRound) error {
	candidates := proposerIDs(round)
	if len(candidates) == 0 {
		round.Phase2Votes = nil
		round.CurrentPhase = history.PhaseTallying
		return nil
	}

	proposals := make(map[string]result, len(round.Phase1Proposals))
	for _, p := range round.Phase1Proposals {
		if p.ErrorMessage == nil {
			proposals[p.ModelID] = result{content: p.Content}
		}
	}
	proposalList := formatProposalList(candidates, proposals)

	prompts := make(map[string][]gateway.Message, len(candidates))
	for _, voter := range candidates {
		prompt := expandTemplate(e.templates.Voting, map[string]string{
			"user_question": round.UserQuestion,
			"all_proposals": proposalList,
			"your_proposal": proposals[voter].content,
		})
		prompts[voter] = []gateway.Message{gateway.NewUserMessage(prompt)}
	}

	results := runPhasePerModel(ctx, e.gw, string(history.PhaseVoting), prompts, e.observe)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	round.Phase2Votes = round.Phase2Votes[:0]
	for _, voter := range candidates {
		r := results[voter]
		vote := history.ModelVote{VoterID: voter, ErrorMessage: r.errorMessagePtr()}
		if !r.failed() {
			vote.RawResponse = r.content
			vote.VotedFor = ParseBallot(r.content, voter, candidates)
		}
		round.Phase2Votes = append(round.Phase2Votes, vote)
	}
	round.CurrentPhase = history.PhaseTallying
	return nil
}

// proposerIDs lists the models whose proposals succeeded, in selection
// order. Only they appear on ballots and in tallies.
func proposerIDs(round *history.CompetitiveRound) []string {
	var ids []string
	for _, p := range round.Phase1Proposals {
		if p.ErrorMessage == nil {
			ids = append(ids, p.ModelID)
		}
	}
	return ids
}

// ParseBallot extracts a vote from a model's free-form ballot text. The
// earliest case-insensitive occurrence of any candidate id wins; a ballot
// whose earliest match is the voter itself, or that names no candidate at
// all, is invalid and returns nil.
func ParseBallot(raw, voter string, candidates []string) *string {
	lower := strings.ToLower(raw)
	bestIdx := -1
	var chosen string
	for _, candidate := range candidates {
		idx := strings.Index(lower, strings.ToLower(candidate))
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			bestIdx = idx
			chosen = candidate
		}
	}
	if bestIdx < 0 || chosen == voter {
		return nil
	}
	return &chosen
}

// TallyVotes aggregates valid ballots into per-candidate tallies, sorted
// by vote count descending (ties keep candidate order), and returns the
// winners: every candidate at the maximum count when that count is
// positive. All-invalid ballots produce zero tallies and no winners.
func TallyVotes(candidates []string, votes []history.ModelVote) ([]history.VoteTally, []string) {
	tallies := make([]history.VoteTally, 0, len(candidates))
	index := make(map[string]int, len(candidates))
	for i, candidate := range candidates {
		index[candidate] = i
		tallies = append(tallies, history.VoteTally{ModelID: candidate})
	}

	for _, vote := range votes {
		if vote.VotedFor == nil {
			continue
		}
		if i, ok := index[*vote.VotedFor]; ok {
			tallies[i].VoteCount++
			tallies[i].Voters = append(tallies[i].Voters, vote.VoterID)
		}
	}

	sort.SliceStable(tallies, func(i, j int) bool {
		return tallies[i].VoteCount > tallies[j].VoteCount
	})

	var winners []string
	if len(tallies) > 0 && tallies[0].VoteCount > 0 {
		max := tallies[0].VoteCount
		for _, tally := range tallies {
			if tally.VoteCount == max {
				winners = append(winners, tally.ModelID)
			}
		}
	}
	return tallies, winners
}
