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
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "agenttools/internal/errors"
)

// FindOptions tune Find. Name is a shell glob and Regex a regular
// expression; both match the base name.
type FindOptions struct {
	Name       string
	Regex      string
	IgnoreCase bool
	// Type restricts results to files ("f") or directories ("d").
	Type     string
	MaxDepth int
	Hidden   bool
	Limit    int
}

// FindResult lists matching paths in walk order.
type FindResult struct {
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated"`
}

// Find walks path and reports entries whose base name matches. Results are
// capped at the toolkit limit.
func (t *Toolkit) Find(ctx context.Context, path string, opts FindOptions) (FindResult, error) {
	if path == "" {
		path = "."
	}
	match, err := findMatcher(opts)
	if err != nil {
		return FindResult{}, err
	}
	switch opts.Type {
	case "", "f", "d":
	default:
		return FindResult{}, errInvalidInput("type must be \"f\" or \"d\", got %q", opts.Type)
	}
	if opts.MaxDepth < 0 || opts.Limit < 0 {
		return FindResult{}, errInvalidInput("max_depth and limit must not be negative")
	}
	limit := t.limits.MaxFindResults
	if opts.Limit > 0 && opts.Limit < limit {
		limit = opts.Limit
	}
	maxDepth := t.limits.MaxDirectoryDepth
	if opts.MaxDepth > 0 && opts.MaxDepth < maxDepth {
		maxDepth = opts.MaxDepth
	}

	root, err := t.sandbox.ValidateRead(path)
	if err != nil {
		return FindResult{}, err
	}
	if _, err := os.Stat(root); err != nil {
		return FindResult{}, apperrors.FromOS("find", path, err)
	}

	var result FindResult
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if !opts.Hidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := t.sandbox.ValidateRead(p); err != nil {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		wantType := opts.Type == "" || (opts.Type == "d") == d.IsDir()
		if wantType && match(d.Name()) {
			if len(result.Entries) >= limit {
				result.Truncated = true
				return filepath.SkipAll
			}
			result.Entries = append(result.Entries, filepath.Join(path, rel))
		}
		if d.IsDir() && depth >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return FindResult{}, apperrors.FromOS("find", path, walkErr)
	}
	return result, nil
}

func findMatcher(opts FindOptions) (func(string) bool, error) {
	switch {
	case opts.Name != "" && opts.Regex != "":
		return nil, errInvalidInput("name and regex are mutually exclusive")
	case opts.Name != "":
		pattern := opts.Name
		if opts.IgnoreCase {
			pattern = strings.ToLower(pattern)
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid name pattern", err)
		}
		return func(name string) bool {
			if opts.IgnoreCase {
				name = strings.ToLower(name)
			}
			ok, _ := filepath.Match(pattern, name)
			return ok
		}, nil
	case opts.Regex != "":
		expr := opts.Regex
		if opts.IgnoreCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid regex pattern", err)
		}
		return re.MatchString, nil
	default:
		return func(string) bool { return true }, nil
	}
}

// Format prints one path per line.
func (r FindResult) Format() string {
	if len(r.Entries) == 0 {
		return ""
	}
	out := strings.Join(r.Entries, "\n") + "\n"
	if r.Truncated {
		out += "(results truncated)\n"
	}
	return out
}
