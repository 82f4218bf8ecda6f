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
	"io"

	"agenttools/internal/tools"
	systemprompt "agenttools/system_prompt"

	"github.com/spf13/cobra"
)

func newPromptCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt with the active tools and security tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.Close()
			return writePrompt(cmd.OutOrStdout(), a.registry)
		},
	}
}

func writePrompt(w io.Writer, registry *tools.Registry) error {
	defs := registry.Definitions()
	env := systemprompt.Environment{
		Root:  registry.Toolkit().Root(),
		Tier:  registry.Toolkit().Policy().String(),
		Tools: make([]systemprompt.Tool, 0, len(defs)),
	}
	for _, def := range defs {
		env.Tools = append(env.Tools, systemprompt.Tool{Name: def.Name, Description: def.Description})
	}
	return systemprompt.Render(w, env)
}
