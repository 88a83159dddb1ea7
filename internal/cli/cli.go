// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command-line parsing for gtllm.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdAsk Command = iota
	CmdModels
	CmdCredits
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool

	// Ask
	Models      []string
	Mode        string
	Moderator   string
	Synthesiser string
	Arbiter     string
	System      string
	SessionID   string
	Query       string

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `gtllm - multi-model LLM chat over OpenRouter

Usage:
  gtllm ask "question" [flags]   Run one round in a chat mode
  gtllm models                   List available models with pricing
  gtllm credits                  Show account credit balance
  gtllm sessions [subcommand]    Saved session management
  gtllm config [subcommand]      Configuration
  gtllm version                  Show version information
  gtllm help                     Show this help

Ask Flags:
  -m, --models a,b,c      Models to use (comma separated, required)
      --mode MODE         standard | pvp | collaborative | competitive | llm_choice
                          (default: standard)
      --moderator NAME    PvP judge model (omit for an unjudged debate)
      --synthesiser NAME  Collaborative consensus model (default: first model)
      --arbiter NAME      LLM's-choice decision model (default: first model)
      --system TEXT       System prompt (standard and collaborative modes)
      --session ID        Continue an existing standard session

Session Commands:
  gtllm sessions list            List saved sessions, newest first
  gtllm sessions show <id>       Print a session transcript
  gtllm sessions resume <id>     Finish an interrupted competitive round
  gtllm sessions delete <id>     Delete a session

Config Commands:
  gtllm config show              Show current configuration
  gtllm config set-key KEY       Store the OpenRouter API key
  gtllm config clear-key         Remove the stored API key
  gtllm config theme NAME        Set the theme

Global Flags:
  -q, --quiet     Suppress streaming progress
  -v, --verbose   Debug output

Examples:
  gtllm ask -m openai/gpt-4o "What is a monad?"
  gtllm ask -m openai/gpt-4o,anthropic/claude-sonnet-4 --mode collaborative "Design a cache"
  gtllm ask -m a,b --mode pvp --moderator c "Tabs or spaces?"
  gtllm sessions list

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("gtllm version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	args := os.Args[1:]

	remaining, parsedArgs := parseGlobalFlags(args)
	if len(remaining) == 0 {
		return CmdHelp, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "models", "model":
		return CmdModels, parsedArgs

	case "credits", "balance":
		return CmdCredits, parsedArgs

	case "session", "sessions":
		parseSessionArgs(&parsedArgs, remaining)
		return CmdSessions, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for _, arg := range args {
		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string
	args.Mode = "standard"

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-m", "--models":
			if i+1 < len(remaining) {
				i++
				args.Models = splitModels(remaining[i])
			}
		case "--mode":
			if i+1 < len(remaining) {
				i++
				args.Mode = strings.ToLower(remaining[i])
			}
		case "--moderator":
			if i+1 < len(remaining) {
				i++
				args.Moderator = remaining[i]
			}
		case "--synthesiser", "--synthesizer":
			if i+1 < len(remaining) {
				i++
				args.Synthesiser = remaining[i]
			}
		case "--arbiter":
			if i+1 < len(remaining) {
				i++
				args.Arbiter = remaining[i]
			}
		case "--system":
			if i+1 < len(remaining) {
				i++
				args.System = remaining[i]
			}
		case "--session":
			if i+1 < len(remaining) {
				i++
				args.SessionID = remaining[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--models="):
				args.Models = splitModels(strings.TrimPrefix(arg, "--models="))
			case strings.HasPrefix(arg, "--mode="):
				args.Mode = strings.ToLower(strings.TrimPrefix(arg, "--mode="))
			case strings.HasPrefix(arg, "--moderator="):
				args.Moderator = strings.TrimPrefix(arg, "--moderator=")
			case strings.HasPrefix(arg, "--synthesiser="):
				args.Synthesiser = strings.TrimPrefix(arg, "--synthesiser=")
			case strings.HasPrefix(arg, "--arbiter="):
				args.Arbiter = strings.TrimPrefix(arg, "--arbiter=")
			case strings.HasPrefix(arg, "--system="):
				args.System = strings.TrimPrefix(arg, "--system=")
			case strings.HasPrefix(arg, "--session="):
				args.SessionID = strings.TrimPrefix(arg, "--session=")
			case !strings.HasPrefix(arg, "-"):
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// splitModels splits a comma-separated model list, dropping empties.
func splitModels(s string) []string {
	var models []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// parseSessionArgs parses session command specific arguments.
func parseSessionArgs(args *Args, remaining []string) {
	args.Subcommand = "list"
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
		args.Raw = remaining[1:]
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	args.Subcommand = "show"
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = remaining[2]
		}
	}
}

// HandleVersion handles the "version" command.
func HandleVersion() {
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}
