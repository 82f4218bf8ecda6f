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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperrors "agenttools/internal/errors"
)

// GrepOptions tune Grep.
type GrepOptions struct {
	IgnoreCase        bool
	InvertMatch       bool
	LineNumber        bool
	Count             bool
	FilesWithMatches  bool
	FilesWithoutMatch bool
	BeforeContext     int
	AfterContext      int
	FixedStrings      bool
	Recursive         bool
	// MaxMatches caps the total number of matches; zero means the toolkit
	// limit.
	MaxMatches int
}

// GrepMatch is one matching line with its context.
type GrepMatch struct {
	Path       string   `json:"path"`
	LineNumber int      `json:"line_number"`
	Line       string   `json:"line"`
	Before     []string `json:"before,omitempty"`
	After      []string `json:"after,omitempty"`
}

// GrepFileCount is the number of matches found in one searched file.
type GrepFileCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// GrepResult collects matches in file order.
type GrepResult struct {
	Matches   []GrepMatch     `json:"matches"`
	Files     []GrepFileCount `json:"files"`
	Truncated bool            `json:"truncated"`
}

// Grep searches files for pattern. Directories require Recursive; files
// that are not text are skipped during recursive walks.
func (t *Toolkit) Grep(ctx context.Context, pattern string, paths []string, opts GrepOptions) (GrepResult, error) {
	if pattern == "" {
		return GrepResult{}, errInvalidInput("empty pattern")
	}
	if err := requirePaths(paths); err != nil {
		return GrepResult{}, err
	}
	if opts.BeforeContext < 0 || opts.AfterContext < 0 || opts.MaxMatches < 0 {
		return GrepResult{}, errInvalidInput("context and max_matches must not be negative")
	}
	matcher, err := compileGrepPattern(pattern, opts)
	if err != nil {
		return GrepResult{}, err
	}
	resolved, err := t.sandbox.ValidateReads(paths)
	if err != nil {
		return GrepResult{}, err
	}

	s := &grepSearch{
		toolkit: t,
		matcher: matcher,
		opts:    opts,
		limit:   t.limits.MaxGrepMatches,
	}
	if opts.MaxMatches > 0 && opts.MaxMatches < s.limit {
		s.limit = opts.MaxMatches
	}
	for i, path := range paths {
		info, err := os.Stat(resolved[i])
		if err != nil {
			return GrepResult{}, apperrors.FromOS("grep", path, err)
		}
		if info.IsDir() {
			if !opts.Recursive {
				return GrepResult{}, errInvalidInput("%q is a directory (use recursive)", path)
			}
			if err := s.walk(ctx, path, resolved[i]); err != nil {
				return GrepResult{}, err
			}
			continue
		}
		if err := s.file(ctx, path, false); err != nil {
			return GrepResult{}, err
		}
		if s.result.Truncated {
			break
		}
	}
	return s.result, nil
}

func compileGrepPattern(pattern string, opts GrepOptions) (*regexp.Regexp, error) {
	if opts.FixedStrings {
		pattern = regexp.QuoteMeta(pattern)
	}
	if opts.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid regex pattern", err)
	}
	return re, nil
}

type grepSearch struct {
	toolkit *Toolkit
	matcher *regexp.Regexp
	opts    GrepOptions
	limit   int
	result  GrepResult
}

func (s *grepSearch) walk(ctx context.Context, display, root string) error {
	depthLimit := s.toolkit.limits.MaxDirectoryDepth
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return apperrors.FromOS("grep", display, err)
			}
			return nil
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if s.result.Truncated {
			return filepath.SkipAll
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if _, err := s.toolkit.sandbox.ValidateRead(p); err != nil {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.Count(rel, string(filepath.Separator))+1 >= depthLimit {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return s.file(ctx, filepath.Join(display, rel), true)
	})
}

// file searches one file. During walks unreadable and non-text files are
// skipped rather than failing the whole search.
func (s *grepSearch) file(ctx context.Context, path string, walking bool) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	lines, err := s.toolkit.readLines(path)
	if err != nil {
		if walking {
			s.toolkit.logger.Debug().Str("path", path).Err(err).Msg("grep skipped file")
			return nil
		}
		return err
	}

	var hits []int
	for i, line := range lines {
		if s.matcher.MatchString(line) != s.opts.InvertMatch {
			hits = append(hits, i)
		}
	}
	remaining := s.limit - len(s.result.Matches)
	if len(hits) > remaining {
		hits = hits[:remaining]
		s.result.Truncated = true
	}
	s.result.Files = append(s.result.Files, GrepFileCount{Path: path, Count: len(hits)})

	floor := 0
	for idx, i := range hits {
		m := GrepMatch{Path: path, LineNumber: i + 1, Line: lines[i]}
		if b := s.opts.BeforeContext; b > 0 {
			from := max(i-b, floor)
			m.Before = append([]string(nil), lines[from:i]...)
		}
		if a := s.opts.AfterContext; a > 0 {
			to := min(i+1+a, len(lines))
			if idx+1 < len(hits) {
				to = min(to, hits[idx+1])
			}
			m.After = append([]string(nil), lines[i+1:to]...)
			floor = to
		} else {
			floor = i + 1
		}
		s.result.Matches = append(s.result.Matches, m)
	}
	return nil
}

// Format renders the result the way grep prints it. Paths are prefixed when
// more than one file was searched.
func (r GrepResult) Format(opts GrepOptions) string {
	var out strings.Builder
	multi := len(r.Files) > 1 || opts.Recursive
	switch {
	case opts.FilesWithMatches, opts.FilesWithoutMatch:
		for _, f := range r.Files {
			if (f.Count > 0) == opts.FilesWithMatches {
				out.WriteString(f.Path)
				out.WriteByte('\n')
			}
		}
		return out.String()
	case opts.Count:
		for _, f := range r.Files {
			if multi {
				fmt.Fprintf(&out, "%s:%d\n", f.Path, f.Count)
			} else {
				fmt.Fprintf(&out, "%d\n", f.Count)
			}
		}
		return out.String()
	}

	grouped := opts.BeforeContext > 0 || opts.AfterContext > 0
	for i, m := range r.Matches {
		if grouped && i > 0 {
			prev := r.Matches[i-1]
			if prev.Path != m.Path || prev.LineNumber+len(prev.After) < m.LineNumber-len(m.Before)-1 {
				out.WriteString("--\n")
			}
		}
		for j, line := range m.Before {
			writeGrepLine(&out, m.Path, m.LineNumber-len(m.Before)+j, line, '-', multi, opts.LineNumber)
		}
		writeGrepLine(&out, m.Path, m.LineNumber, m.Line, ':', multi, opts.LineNumber)
		for j, line := range m.After {
			writeGrepLine(&out, m.Path, m.LineNumber+1+j, line, '-', multi, opts.LineNumber)
		}
	}
	return out.String()
}

func writeGrepLine(out *strings.Builder, path string, n int, line string, sep byte, withPath, withNumber bool) {
	if withPath {
		out.WriteString(path)
		out.WriteByte(sep)
	}
	if withNumber {
		out.WriteString(strconv.Itoa(n))
		out.WriteByte(sep)
	}
	out.WriteString(line)
	out.WriteByte('\n')
}
