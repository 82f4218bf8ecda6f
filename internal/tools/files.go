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
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	apperrors "agenttools/internal/errors"
)

// CatOptions tune Cat.
type CatOptions struct {
	NumberLines  bool
	ShowEnds     bool
	SqueezeBlank bool
}

// Cat concatenates text files. Line numbering continues across files.
func (t *Toolkit) Cat(ctx context.Context, paths []string, opts CatOptions) (string, error) {
	if err := requirePaths(paths); err != nil {
		return "", err
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return "", err
	}

	var out strings.Builder
	lineNumber := 1
	lastBlank := false
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		lines, err := t.readLines(path)
		if err != nil {
			return "", err
		}
		for _, line := range lines {
			blank := strings.TrimSpace(line) == ""
			if opts.SqueezeBlank && blank && lastBlank {
				continue
			}
			if opts.NumberLines {
				fmt.Fprintf(&out, "%6d\t", lineNumber)
				lineNumber++
			}
			out.WriteString(line)
			if opts.ShowEnds {
				out.WriteByte('$')
			}
			out.WriteByte('\n')
			lastBlank = blank
		}
	}
	return out.String(), nil
}

// LsOptions tune Ls.
type LsOptions struct {
	All           bool
	Long          bool
	HumanReadable bool
	Recursive     bool
	SortByTime    bool
	Reverse       bool
}

// FileEntry is a read-only snapshot of one directory entry.
type FileEntry struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	IsDir    bool        `json:"is_dir"`
	Size     int64       `json:"size"`
	Modified time.Time   `json:"modified"`
	Mode     fs.FileMode `json:"mode"`
}

// LsResult is the listing of one directory.
type LsResult struct {
	Entries   []FileEntry `json:"entries"`
	Total     int         `json:"total"`
	TotalSize int64       `json:"total_size"`
}

// Ls lists path. A file lists as itself. Recursive listings report names
// relative to path. Entries the sandbox would refuse to read are skipped.
func (t *Toolkit) Ls(ctx context.Context, path string, opts LsOptions) (LsResult, error) {
	if path == "" {
		path = "."
	}
	resolved, err := t.sandbox.ValidateRead(path)
	if err != nil {
		return LsResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return LsResult{}, apperrors.FromOS("ls", path, err)
	}
	if !info.IsDir() {
		entry := newFileEntry(info.Name(), resolved, info)
		return LsResult{Entries: []FileEntry{entry}, Total: 1, TotalSize: entry.Size}, nil
	}

	var entries []FileEntry
	walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == resolved {
				return err
			}
			return nil
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if p == resolved {
			return nil
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		if !opts.All && strings.HasPrefix(d.Name(), ".") {
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
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, newFileEntry(filepath.ToSlash(rel), p, fi))
		if len(entries) >= t.limits.MaxDirectoryEntries {
			return apperrors.Newf(apperrors.CodeSandboxViolation, "directory listing exceeds %d entries", t.limits.MaxDirectoryEntries)
		}
		if d.IsDir() && (!opts.Recursive || strings.Count(rel, string(filepath.Separator))+1 >= t.limits.MaxDirectoryDepth) {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return LsResult{}, apperrors.FromOS("ls", path, walkErr)
	}

	sortEntries(entries, opts)
	result := LsResult{Entries: entries, Total: len(entries)}
	for _, entry := range entries {
		result.TotalSize += entry.Size
	}
	return result, nil
}

func newFileEntry(name, path string, info fs.FileInfo) FileEntry {
	return FileEntry{
		Name:     name,
		Path:     path,
		IsDir:    info.IsDir(),
		Size:     info.Size(),
		Modified: info.ModTime(),
		Mode:     info.Mode(),
	}
}

func sortEntries(entries []FileEntry, opts LsOptions) {
	slices.SortStableFunc(entries, func(a, b FileEntry) int {
		if opts.SortByTime && !a.Modified.Equal(b.Modified) {
			return b.Modified.Compare(a.Modified)
		}
		return strings.Compare(a.Name, b.Name)
	})
	if opts.Reverse {
		slices.Reverse(entries)
	}
}

// Format renders the listing the way ls prints it.
func (r LsResult) Format(opts LsOptions) string {
	var out strings.Builder
	for _, entry := range r.Entries {
		name := entry.Name
		if entry.IsDir {
			name += "/"
		}
		if !opts.Long {
			out.WriteString(name)
			out.WriteByte('\n')
			continue
		}
		size := fmt.Sprintf("%d", entry.Size)
		if opts.HumanReadable {
			size = humanize.IBytes(uint64(entry.Size))
		}
		fmt.Fprintf(&out, "%s %10s %s %s\n", entry.Mode.String(), size, entry.Modified.Format("2006-01-02 15:04"), name)
	}
	if opts.Long {
		total := fmt.Sprintf("%d", r.TotalSize)
		if opts.HumanReadable {
			total = humanize.IBytes(uint64(r.TotalSize))
		}
		fmt.Fprintf(&out, "total %d entries, %s\n", r.Total, total)
	}
	return out.String()
}

// WriteOptions tune Write.
type WriteOptions struct {
	Append     bool
	CreateDirs bool
}

// Write creates or replaces path with content and returns the number of
// bytes written.
func (t *Toolkit) Write(ctx context.Context, path, content string, opts WriteOptions) (int, error) {
	if err := ensureContext(ctx); err != nil {
		return 0, err
	}
	if !t.sandbox.Overridden() {
		if err := t.Policy().ValidateFileSize(int64(len(content))); err != nil {
			return 0, err
		}
	}
	if opts.CreateDirs {
		// Everything ValidateWrite checks except the parent's existence must
		// pass before any directory is created.
		parent, err := t.sandbox.ValidateWriteDir(filepath.Dir(path))
		if err != nil {
			return 0, err
		}
		if _, err := t.sandbox.ValidateWriteDir(path); err != nil {
			return 0, err
		}
		if !t.sandbox.Overridden() {
			if err := t.Policy().ValidateExtension(path); err != nil {
				return 0, err
			}
		}
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return 0, apperrors.FromOS("mkdir", filepath.Dir(path), err)
		}
	}
	resolved, err := t.sandbox.ValidateWrite(path)
	if err != nil {
		return 0, err
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return 0, errInvalidInput("%q is a directory", path)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if opts.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return 0, apperrors.FromOS("write", path, err)
	}
	n, err := f.WriteString(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, apperrors.FromOS("write", path, err)
	}
	t.logger.Debug().Str("path", resolved).Int("bytes", n).Msg("File written")
	return n, nil
}
