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

// Limits caps how far the traversing operations (ls -R, grep -r, find and
// recursive cp/rm) may walk. Byte and batch caps live in the policy instead.
type Limits struct {
	MaxDirectoryDepth   int
	MaxDirectoryEntries int
	MaxFindResults      int
	MaxGrepMatches      int
}

// DefaultLimits is what a Toolkit uses when no limits are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDirectoryDepth:   16,
		MaxDirectoryEntries: 10000,
		MaxFindResults:      1000,
		MaxGrepMatches:      1000,
	}
}

// normalizeLimits replaces unset fields with defaults. find never reports
// more than the default result count.
func normalizeLimits(l Limits) Limits {
	def := DefaultLimits()
	positiveOr(&l.MaxDirectoryDepth, def.MaxDirectoryDepth)
	positiveOr(&l.MaxDirectoryEntries, def.MaxDirectoryEntries)
	positiveOr(&l.MaxGrepMatches, def.MaxGrepMatches)
	positiveOr(&l.MaxFindResults, def.MaxFindResults)
	l.MaxFindResults = min(l.MaxFindResults, def.MaxFindResults)
	return l
}

func positiveOr(v *int, fallback int) {
	if *v <= 0 {
		*v = fallback
	}
}
