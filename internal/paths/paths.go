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

package paths

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "agenttools/internal/errors"
)

// CheckRaw rejects input that can never name a file: blank strings, embedded
// NUL bytes, invalid UTF-8, and input longer than maxLen bytes when maxLen
// is positive.
func CheckRaw(path string, maxLen int) error {
	var problem string
	switch {
	case strings.TrimSpace(path) == "":
		problem = "path cannot be empty"
	case strings.ContainsRune(path, 0):
		problem = "path contains null byte"
	case !utf8.ValidString(path):
		problem = "path is not valid UTF-8"
	case maxLen > 0 && len(path) > maxLen:
		return apperrors.Newf(apperrors.CodePath, "path exceeds maximum length of %d characters", maxLen)
	default:
		return nil
	}
	return apperrors.New(apperrors.CodePath, problem)
}

// Canonicalize resolves every symlink in path. Components that do not exist
// yet are kept verbatim below the deepest ancestor that does.
func Canonicalize(path string) (string, error) {
	existing := filepath.Clean(path)
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		switch {
		case err == nil:
			return joinReversed(resolved, missing), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", apperrors.FromOS("resolve", path, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return filepath.Clean(path), nil
		}
		missing = append(missing, filepath.Base(existing))
		existing = parent
	}
}

func joinReversed(base string, reversed []string) string {
	parts := make([]string, 0, len(reversed)+1)
	parts = append(parts, base)
	for i := len(reversed) - 1; i >= 0; i-- {
		parts = append(parts, reversed[i])
	}
	return filepath.Join(parts...)
}

// IsWithin reports whether path equals base or lies below it. Both are
// compared lexically.
func IsWithin(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ResolveEntry turns a configured entry such as a blocked path into an
// absolute, symlink-free path. Relative entries are taken from base. An entry
// that does not exist is returned cleaned so it can still be matched later.
func ResolveEntry(entry, base string) (string, error) {
	candidate := entry
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(base, candidate)
	}
	candidate = filepath.Clean(candidate)
	_, err := os.Lstat(candidate)
	if errors.Is(err, fs.ErrNotExist) {
		return candidate, nil
	}
	if err != nil {
		return "", apperrors.FromOS("stat", entry, err)
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", apperrors.FromOS("resolve", entry, err)
	}
	return resolved, nil
}
