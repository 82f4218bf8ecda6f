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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"agenttools/internal/tools"

	"github.com/spf13/cobra"
)

func newToolsCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.Close()
			return writeDefinitions(cmd.OutOrStdout(), a.registry, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "openai", "Output format: openai, anthropic or names")
	return cmd
}

func writeDefinitions(w io.Writer, registry *tools.Registry, format string) error {
	var payload any
	switch strings.ToLower(format) {
	case "openai":
		payload = registry.OpenAITools()
	case "anthropic":
		payload = registry.AnthropicTools()
	case "names":
		for _, def := range registry.Definitions() {
			fmt.Fprintln(w, def.Name)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected openai, anthropic or names)", format)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
