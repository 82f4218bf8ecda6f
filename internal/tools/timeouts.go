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

package tools

import "time"

const defaultCallTimeout = 2 * time.Minute

// TimeoutConfig caps the wall-clock time of a registry call. Shell calls are
// also subject to the executor's own timeout, whichever fires first.
type TimeoutConfig struct {
	Default time.Duration
	PerTool map[string]time.Duration
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{Default: defaultCallTimeout}
}

// For returns the deadline budget of the named base tool. Zero disables the
// deadline.
func (t TimeoutConfig) For(tool string) time.Duration {
	if budget, ok := t.PerTool[tool]; ok {
		return budget
	}
	return t.Default
}
