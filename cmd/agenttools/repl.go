// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"agenttools/internal/tools"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const replHelp = `Enter a tool call as: <tool> {json arguments}
Commands: help, tools, quit`

func newReplCmd(opts *globalOptions) *cobra.Command {
	var historyFile string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run tool calls interactively, or line by line from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.Close()

			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return runBatch(cmd.Context(), a.registry, a.logger, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runInteractive(cmd.Context(), a.registry, a.logger, historyFile)
		},
	}
	cmd.Flags().StringVar(&historyFile, "history", defaultHistoryFile(), "Command history file")
	return cmd
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agenttools_history")
}

// parseCallLine splits "<tool> {json}" into the tool name and its
// arguments. Missing arguments default to an empty object.
func parseCallLine(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	if args == "" {
		args = "{}"
	}
	return name, args
}

// runLine executes one input line. It reports whether the loop should stop
// and whether the line was a failed tool call.
func runLine(ctx context.Context, registry *tools.Registry, logger zerolog.Logger, line string, out io.Writer) (quit bool, failed bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, false
	}
	switch line {
	case "quit", "exit":
		return true, false
	case "help":
		fmt.Fprintln(out, replHelp)
		return false, false
	case "tools":
		for _, name := range registry.GetToolNames() {
			fmt.Fprintln(out, name)
		}
		return false, false
	}

	name, args := parseCallLine(line)
	logger.Info().Str("tool", name).Msg("REPL call")
	output, err := registry.Call(ctx, name, args)
	fmt.Fprint(out, output)
	if output != "" && !strings.HasSuffix(output, "\n") {
		fmt.Fprintln(out)
	}
	return false, err != nil
}

func runBatch(ctx context.Context, registry *tools.Registry, logger zerolog.Logger, in io.Reader, out io.Writer) error {
	logger.Debug().Msg("Running in batch mode")

	failures := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		quit, failed := runLine(ctx, registry, logger, scanner.Text(), out)
		if failed {
			failures++
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if failures > 0 {
		return fmt.Errorf("%d tool call(s) failed", failures)
	}
	return nil
}

func runInteractive(ctx context.Context, registry *tools.Registry, logger zerolog.Logger, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "❯ ",
		HistoryFile:     historyFile,
		AutoComplete:    toolCompleter(registry),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "agenttools %s\n", version)
	fmt.Fprintf(rl.Stdout(), "Sandbox root: %s\n", registry.Toolkit().Root())
	fmt.Fprintf(rl.Stdout(), "Security tier: %s\n", registry.Toolkit().Policy().Level)
	fmt.Fprintln(rl.Stdout(), replHelp)
	fmt.Fprintln(rl.Stdout())

	for {
		if ctx.Err() != nil {
			break
		}
		line, err := rl.Readline()
		switch promptResult(line, err) {
		case promptSkip:
			continue
		case promptClosed:
			logger.Debug().Msg("Readline closed")
			return nil
		case promptFailed:
			return err
		}
		if quit, _ := runLine(ctx, registry, logger, line, rl.Stdout()); quit {
			break
		}
	}

	logger.Info().Msg("Session ended")
	return nil
}

type promptOutcome int

const (
	promptLine promptOutcome = iota
	promptSkip
	promptClosed
	promptFailed
)

// promptResult decides what the interactive loop does with one Readline
// return. Ctrl-C drops the pending line; Ctrl-D on an empty line ends the
// session.
func promptResult(line string, err error) promptOutcome {
	switch {
	case err == nil:
		return promptLine
	case errors.Is(err, readline.ErrInterrupt):
		return promptSkip
	case errors.Is(err, io.EOF) && strings.TrimSpace(line) == "":
		return promptClosed
	case errors.Is(err, io.EOF):
		return promptSkip
	default:
		return promptFailed
	}
}

func toolCompleter(registry *tools.Registry) *readline.PrefixCompleter {
	names := append(registry.GetToolNames(), "help", "tools", "quit")
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name)
	}
	return readline.NewPrefixCompleter(items...)
}
