// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - "gtllm models" and "gtllm credits" handlers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/gtllm/internal/gateway"
	"github.com/jeranaias/gtllm/internal/logging"
	"github.com/jeranaias/gtllm/internal/settings"
)

// listTimeout bounds the unary catalogue calls.
const listTimeout = 30 * time.Second

func newClient() (*gateway.Client, error) {
	s := settings.Global()
	if !s.HasAPIKey() {
		return nil, errors.New("no API key configured; run: gtllm config set-key YOUR_KEY")
	}
	return gateway.New(s.APIKey()), nil
}

// HandleModels handles the "models" command.
func HandleModels(args Args) error {
	logging.Init(args.Verbose)
	defer logging.Sync()

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	fmt.Printf("%-48s %10s %14s %14s\n", "MODEL", "CONTEXT", "PROMPT $/tok", "COMPLETION $/tok")
	for _, m := range models {
		prompt, completion := pricingDisplay(m.Pricing)
		fmt.Printf("%-48s %10d %14s %14s\n", m.ID, m.ContextLength, prompt, completion)
	}
	if !args.Quiet {
		fmt.Printf("\n%d models available\n", len(models))
	}
	return nil
}

// pricingDisplay renders a model's per-token prices. The catalogue omits
// the pricing object for some entries, so nil means unpublished.
func pricingDisplay(p *gateway.Pricing) (prompt, completion string) {
	if p == nil {
		return "-", "-"
	}
	return p.Prompt, p.Completion
}

// HandleCredits handles the "credits" command.
func HandleCredits(args Args) error {
	logging.Init(args.Verbose)
	defer logging.Sync()

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	credits, err := client.GetCredits(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Credits:   $%.2f\n", credits.TotalCredits)
	fmt.Printf("Used:      $%.2f\n", credits.TotalUsage)
	fmt.Printf("Remaining: %s\n", credits.RemainingFormatted())
	return nil
}
