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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"agenttools/internal/config"
	"agenttools/internal/tools"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultConfigFile = "agenttools.json"

var (
	version = "dev"
	commit  = "unknown"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath    string
	root          string
	securityLevel string
	prefix        string
	legacy        bool
	logLevel      string
	logFile       string
}

func (o *globalOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", defaultConfigFile, "Config file (.json, .jsonc, .yaml, .toml)")
	fs.StringVarP(&o.root, "root", "r", "", "Sandbox root directory")
	fs.StringVarP(&o.securityLevel, "security-level", "s", "", "Security tier: strict, moderate, permissive or disabled")
	fs.StringVar(&o.prefix, "prefix", "", "Prefix for every tool name")
	fs.BoolVar(&o.legacy, "legacy", false, "Also register the deprecated read_file, write_file, list_directory and execute_shell_command tools")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Log file path (logs disabled by default)")
}

// app is the toolkit stack built from the config file and flags.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *tools.Registry
	logOut   io.Closer
}

func (a *app) Close() error {
	if a.logOut != nil {
		return a.logOut.Close()
	}
	return nil
}

func (o *globalOptions) load() (*app, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.root != "" {
		cfg.SandboxRoot = o.root
	}
	if o.securityLevel != "" {
		cfg.SecurityLevel = o.securityLevel
	}
	if o.prefix != "" {
		cfg.ToolPrefix = o.prefix
	}
	if o.legacy {
		cfg.LegacyTools = true
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	level, err := cfg.ZerologLevel()
	if err != nil {
		return nil, err
	}
	logger, logOut, err := initLogger(level, o.logFile)
	if err != nil {
		return nil, err
	}

	tk, err := cfg.NewToolkit(logger)
	if err != nil {
		if logOut != nil {
			_ = logOut.Close()
		}
		return nil, fmt.Errorf("failed to create toolkit: %w", err)
	}
	registry := tools.NewRegistry(tk, cfg.RegistryOptions(logger))
	for _, warning := range cfg.Validate(registry) {
		logger.Warn().Str("field", warning.Field).Msg(warning.Message)
	}
	logger.Info().
		Str("root", tk.Root()).
		Str("policy", tk.Policy().String()).
		Int("tools", len(registry.Definitions())).
		Msg("Toolkit ready")

	return &app{cfg: cfg, logger: logger, registry: registry, logOut: logOut}, nil
}

func initLogger(level zerolog.Level, logFilePath string) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(level)

	// Logs stay off stdout so the MCP channel and tool output are clean.
	var output io.Writer = io.Discard
	var closer io.Closer
	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		closer = file
	}

	return zerolog.New(output).With().Timestamp().Logger(), closer, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "agenttools",
		Short: "Sandboxed filesystem and shell tools for LLM agents",
		Long: `agenttools exposes sandboxed coreutils-style filesystem tools and a
policy-checked shell executor to LLM agents, over MCP or as one-shot calls.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(opts),
		newCallCmd(opts),
		newToolsCmd(opts),
		newReplCmd(opts),
		newPromptCmd(opts),
		newSchemaCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agenttools %s (commit: %s)\n", version, commit)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
