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
	"fmt"

	"agenttools/internal/config"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var example bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON schema, or an example config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if example {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), config.ExampleConfigJSON())
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.SchemaJSON())
			return err
		},
	}
	cmd.Flags().BoolVar(&example, "example", false, "print a commented example config instead")
	return cmd
}
