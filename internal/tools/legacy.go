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
	"strings"

	"agenttools/internal/shell"
)

// LegacyTools is the older four-tool surface kept for agents that still
// call read_file, write_file, list_directory and execute_shell_command.
//
// Deprecated: use the Toolkit methods or the registry tools instead.
type LegacyTools struct {
	toolkit *Toolkit
}

// NewLegacyTools wraps t.
//
// Deprecated: use the Toolkit directly.
func NewLegacyTools(t *Toolkit) *LegacyTools {
	return &LegacyTools{toolkit: t}
}

// ReadFile returns the text of one file.
//
// Deprecated: use Toolkit.Cat.
func (l *LegacyTools) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	return l.toolkit.readText(path)
}

// WriteFile replaces path with content.
//
// Deprecated: use Toolkit.Write.
func (l *LegacyTools) WriteFile(ctx context.Context, path, content string) error {
	_, err := l.toolkit.Write(ctx, path, content, WriteOptions{})
	return err
}

// ListDirectory returns the entry names of path, directories suffixed
// with a slash.
//
// Deprecated: use Toolkit.Ls.
func (l *LegacyTools) ListDirectory(ctx context.Context, path string) ([]string, error) {
	result, err := l.toolkit.Ls(ctx, path, LsOptions{All: true})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		name := entry.Name
		if entry.IsDir {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// ExecuteShellCommand runs command with the default shell and returns
// stdout followed by stderr. A non-zero exit status is reported as an error.
//
// Deprecated: use Toolkit.Execute.
func (l *LegacyTools) ExecuteShellCommand(ctx context.Context, command string) (string, error) {
	result, err := l.toolkit.Execute(ctx, command, shell.Options{})
	if err != nil {
		return "", err
	}
	output := result.Stdout + result.Stderr
	if !result.Success() {
		return output, fmt.Errorf("command exited with status %d", result.Status)
	}
	return output, nil
}

type legacyPathArgs struct {
	Path string `json:"path" jsonschema:"description=Path to the file" validate:"required"`
}

type legacyWriteArgs struct {
	Path    string `json:"path" jsonschema:"description=Path to the file to write" validate:"required"`
	Content string `json:"content" jsonschema:"description=Content to write to the file"`
}

type legacyListArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list (default: sandbox root)"`
}

type legacyShellArgs struct {
	Command string `json:"command" jsonschema:"description=The shell command to execute" validate:"required"`
}

func legacyTools(t *Toolkit, filters OutputFilterConfig) []Tool {
	legacy := NewLegacyTools(t)
	return []Tool{
		define("read_file", "Read the contents of a file (deprecated: use cat)", func(ctx context.Context, a legacyPathArgs) (string, error) {
			return legacy.ReadFile(ctx, a.Path)
		}),
		define("write_file", "Create or overwrite a text file (deprecated: use write)", func(ctx context.Context, a legacyWriteArgs) (string, error) {
			if err := legacy.WriteFile(ctx, a.Path, a.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path), nil
		}),
		define("list_directory", "List directory entries (deprecated: use ls)", func(ctx context.Context, a legacyListArgs) (string, error) {
			names, err := legacy.ListDirectory(ctx, a.Path)
			if err != nil {
				return "", err
			}
			return strings.Join(names, "\n"), nil
		}),
		define("execute_shell_command", "Execute a shell command and return its output (deprecated: use shell)", func(ctx context.Context, a legacyShellArgs) (string, error) {
			output, err := legacy.ExecuteShellCommand(ctx, a.Command)
			filtered, _ := filters.apply(output)
			if err != nil {
				return "", fmt.Errorf("%w\n%s", err, filtered)
			}
			return filtered, nil
		}),
	}
}
