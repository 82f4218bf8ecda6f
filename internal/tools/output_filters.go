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

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// OutputFilterConfig describes how shell output is cleaned before it is
// handed back to a model.
type OutputFilterConfig struct {
	MaxChars     int
	StripANSI    bool
	StripControl bool
}

const defaultMaxOutputChars = 16000

// escapeSequence matches CSI sequences and OSC strings terminated by BEL or ST.
var escapeSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b\][^\x1b\x07]*(?:\x07|\x1b\\)`)

func DefaultOutputFilterConfig() OutputFilterConfig {
	return OutputFilterConfig{MaxChars: defaultMaxOutputChars, StripANSI: true, StripControl: true}
}

// normalize resolves the effective character cap: the configured cap, or the
// default, lowered to the policy output limit when that is tighter.
func (c OutputFilterConfig) normalize(policyLimit int64) OutputFilterConfig {
	limit := int64(c.MaxChars)
	if limit <= 0 {
		limit = defaultMaxOutputChars
	}
	if policyLimit > 0 {
		limit = min(limit, policyLimit)
	}
	c.MaxChars = int(limit)
	return c
}

// apply returns the filtered output and whether it had to be cut.
func (c OutputFilterConfig) apply(output string) (string, bool) {
	if c.StripANSI {
		output = escapeSequence.ReplaceAllLiteralString(output, "")
	}
	if c.StripControl {
		output = strings.Map(dropControl, output)
	}
	return clipRunes(output, c.MaxChars)
}

// dropControl keeps line structure and tabs but removes every other C0
// control character and DEL.
func dropControl(r rune) rune {
	switch {
	case r == '\n', r == '\r', r == '\t':
		return r
	case r < 0x20, r == 0x7f:
		return -1
	}
	return r
}

// clipRunes keeps at most limit runes of s. A non-positive limit keeps all.
func clipRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	offset := 0
	for range limit {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}
	return s[:offset], true
}
