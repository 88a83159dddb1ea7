// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"fmt"
	"strings"
)

// Prompt templates for the multi-phase modes. Placeholders are expanded
// with expandTemplate; renderers never see them.
const (
	// CollaborativeInitialTemplate asks each model for its own answer.
	CollaborativeInitialTemplate = "You are part of a collaborative AI team working together to answer questions. Provide your best answer to this question:\n\n{user_question}"

	// CollaborativeReviewTemplate asks a model to critique its peers.
	CollaborativeReviewTemplate = "Review the following responses from other AI models. Provide constructive feedback on their strengths and areas for improvement.\n\nUser Question: {user_question}\n\nOther responses:\n{other_responses}\n\nProvide your analysis:"

	// CollaborativeConsensusTemplate asks the synthesiser for the final
	// joint answer.
	CollaborativeConsensusTemplate = "Based on all the initial responses and reviews below, synthesize a final collaborative answer that combines the best insights from all models.\n\nUser Question: {user_question}\n\nInitial Responses:\n{initial_responses}\n\nReviews:\n{reviews}\n\nSynthesize the best collaborative answer:"

	// CompetitiveProposalTemplate asks each contestant for its entry.
	CompetitiveProposalTemplate = "You are competing against other AI models to give the single best answer to a question. Provide your strongest, most complete answer.\n\nQuestion: {user_question}"

	// CompetitiveVotingTemplate asks each contestant to pick a winner
	// other than itself.
	CompetitiveVotingTemplate = "You are judging a competition between AI models.\n\nQuestion: {user_question}\n\nProposals:\n{all_proposals}\n\nYour own proposal was:\n{your_proposal}\n\nVote for the single best proposal that is not your own by stating that model's id exactly as written. You cannot vote for yourself."

	// ChoiceDecisionTemplate asks the arbiter to pick a protocol.
	ChoiceDecisionTemplate = "You are coordinating a team of AI models. Decide whether this question is better answered by the models collaborating on one joint answer, or by competing and voting for the best individual answer. Reply with exactly one word: collaborate or compete.\n\nQuestion: {user_question}"

	// DefaultBotPrompt is the PvP debater system prompt.
	DefaultBotPrompt = "You are participating in a debate against another AI model. Give your best, most persuasive answer to the user's question."

	// DefaultModeratorPrompt is the PvP moderator system prompt.
	DefaultModeratorPrompt = "You are an impartial moderator judging a debate between two AI models."
)

// moderatorJudgmentPrompt composes the PvP judgment request.
func moderatorJudgmentPrompt(question, bot1ID, bot1Text, bot2ID, bot2Text string) string {
	return fmt.Sprintf(
		"You are a moderator judging a debate between two AI models.\n\nUser Question: %s\n\n%s Response:\n%s\n\n%s Response:\n%s\n\nPlease evaluate both responses and determine which one is better. Explain your reasoning and declare a winner. Be specific about what makes one response superior to the other.",
		question, bot1ID, bot1Text, bot2ID, bot2Text,
	)
}

// expandTemplate substitutes {placeholder} values into a template.
func expandTemplate(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

// formatResponses renders model outputs as "{id}: {content}" blocks joined
// by blank lines, the shape the review and consensus templates expect.
func formatResponses(order []string, results map[string]result) string {
	var parts []string
	for _, model := range order {
		r, ok := results[model]
		if !ok || r.failed() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", model, r.content))
	}
	return strings.Join(parts, "\n\n")
}

// formatProposalList renders a numbered proposal list for voting prompts.
func formatProposalList(order []string, results map[string]result) string {
	var parts []string
	n := 0
	for _, model := range order {
		r, ok := results[model]
		if !ok || r.failed() {
			continue
		}
		n++
		parts = append(parts, fmt.Sprintf("%d. %s: %s", n, model, r.content))
	}
	return strings.Join(parts, "\n\n")
}
