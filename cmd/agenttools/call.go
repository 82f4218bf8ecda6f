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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCallCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Run one tool call and print its result",
		Long: `Run one tool call and print its result. Arguments are a JSON object;
when omitted and stdin is not a terminal they are read from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.Close()

			argsJSON := "{}"
			switch {
			case len(args) == 2:
				argsJSON = args[1]
			case !term.IsTerminal(int(os.Stdin.Fd())):
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("error reading arguments: %w", err)
				}
				if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
					argsJSON = trimmed
				}
			}

			output, err := a.registry.Call(cmd.Context(), args[0], argsJSON)
			if err != nil {
				return errors.New(output)
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			if output != "" && !strings.HasSuffix(output, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}
