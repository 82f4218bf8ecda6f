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
	"encoding/json"
	"fmt"
	"time"

	"agenttools/internal/shell"
)

const builtinToolVersion = "1.0.0"

// ShellToolName is the canonical name of the command execution tool;
// ShellToolAlias is registered next to it.
const (
	ShellToolName  = "shell"
	ShellToolAlias = "execute"
)

// define builds a tool whose arguments decode into T. The schema is derived
// from T's tags.
func define[T any](name, description string, run func(ctx context.Context, args T) (string, error)) *FuncTool {
	return &FuncTool{
		ToolName: name,
		Summary:  description,
		Schema:   mustSchemaParametersFor[T](),
		Run: func(ctx context.Context, raw map[string]interface{}) (string, error) {
			args, err := unmarshalAndValidate[T](raw)
			if err != nil {
				return "", wrapArgs(err)
			}
			return run(ctx, args)
		},
		Check: func(raw map[string]interface{}) error {
			if _, err := unmarshalAndValidate[T](raw); err != nil {
				return wrapArgs(err)
			}
			return nil
		},
		APIVersion: builtinToolVersion,
	}
}

// builtinTools is the descriptor table of every toolkit operation.
func builtinTools(t *Toolkit, filters OutputFilterConfig) []Tool {
	return []Tool{
		define("cat", "Concatenate files and print them", func(ctx context.Context, a catArgs) (string, error) {
			return t.Cat(ctx, pathList(a.Paths, a.Path), CatOptions{
				NumberLines:  a.NumberLines,
				ShowEnds:     a.ShowEnds,
				SqueezeBlank: a.SqueezeBlank,
			})
		}),
		define("ls", "List directory contents", func(ctx context.Context, a lsArgs) (string, error) {
			opts := LsOptions{
				All:           a.All,
				Long:          a.Long,
				HumanReadable: a.HumanReadable,
				Recursive:     a.Recursive,
				SortByTime:    a.SortByTime,
				Reverse:       a.Reverse,
			}
			result, err := t.Ls(ctx, a.Path, opts)
			if err != nil {
				return "", err
			}
			return result.Format(opts), nil
		}),
		define("head", "Print the first lines or bytes of files", func(ctx context.Context, a headArgs) (string, error) {
			return t.Head(ctx, pathList(a.Paths, a.Path), headOptions(a))
		}),
		define("tail", "Print the last lines or bytes of files", func(ctx context.Context, a headArgs) (string, error) {
			return t.Tail(ctx, pathList(a.Paths, a.Path), headOptions(a))
		}),
		define("wc", "Count lines, words and bytes in files", func(ctx context.Context, a wcArgs) (string, error) {
			opts := WcOptions{Lines: a.Lines, Words: a.Words, Bytes: a.Bytes, Chars: a.Chars}
			counts, err := t.Wc(ctx, pathList(a.Paths, a.Path), opts)
			if err != nil {
				return "", err
			}
			return FormatWc(counts, opts), nil
		}),
		define("grep", "Search files for lines matching a regular expression", func(ctx context.Context, a grepArgs) (string, error) {
			opts := GrepOptions{
				IgnoreCase:        a.IgnoreCase,
				InvertMatch:       a.InvertMatch,
				LineNumber:        a.LineNumber,
				Count:             a.Count,
				FilesWithMatches:  a.FilesWithMatches,
				FilesWithoutMatch: a.FilesWithoutMatch,
				BeforeContext:     a.BeforeContext,
				AfterContext:      a.AfterContext,
				FixedStrings:      a.FixedStrings,
				Recursive:         a.Recursive,
				MaxMatches:        a.MaxMatches,
			}
			result, err := t.Grep(ctx, a.Pattern, pathList(a.Paths, a.Path), opts)
			if err != nil {
				return "", err
			}
			return result.Format(opts), nil
		}),
		define("sort", "Sort lines of text files", func(ctx context.Context, a sortArgs) (string, error) {
			return t.Sort(ctx, pathList(a.Paths, a.Path), SortOptions{
				Reverse:      a.Reverse,
				Numeric:      a.Numeric,
				Unique:       a.Unique,
				IgnoreCase:   a.IgnoreCase,
				Version:      a.Version,
				Month:        a.Month,
				HumanNumeric: a.HumanNumeric,
			})
		}),
		define("uniq", "Report or omit repeated adjacent lines", func(ctx context.Context, a uniqArgs) (string, error) {
			return t.Uniq(ctx, pathList(a.Paths, a.Path), UniqOptions{
				Count:      a.Count,
				Repeated:   a.Repeated,
				Unique:     a.Unique,
				IgnoreCase: a.IgnoreCase,
				SkipFields: a.SkipFields,
				SkipChars:  a.SkipChars,
			})
		}),
		define("tac", "Print files with lines in reverse order", func(ctx context.Context, a tacArgs) (string, error) {
			return t.Tac(ctx, pathList(a.Paths, a.Path))
		}),
		define("nl", "Number the non-empty lines of files", func(ctx context.Context, a nlArgs) (string, error) {
			return t.Nl(ctx, pathList(a.Paths, a.Path), a.Start)
		}),
		define("cut", "Select fields or characters from each line", func(ctx context.Context, a cutArgs) (string, error) {
			return t.Cut(ctx, pathList(a.Paths, a.Path), CutOptions{
				Fields:        a.Fields,
				Characters:    a.Characters,
				Delimiter:     a.Delimiter,
				OnlyDelimited: a.OnlyDelimited,
			})
		}),
		define("find", "Find files and directories by name", func(ctx context.Context, a findArgs) (string, error) {
			result, err := t.Find(ctx, a.Path, FindOptions{
				Name:       a.Name,
				Regex:      a.Regex,
				IgnoreCase: a.IgnoreCase,
				Type:       a.Type,
				MaxDepth:   a.MaxDepth,
				Hidden:     a.Hidden,
				Limit:      a.Limit,
			})
			if err != nil {
				return "", err
			}
			return result.Format(), nil
		}),
		define("cp", "Copy files and directories", func(ctx context.Context, a copyArgs) (string, error) {
			err := t.Cp(ctx, a.Sources, a.Destination, CpOptions{
				Recursive:        a.Recursive,
				Force:            a.Force,
				NoFollowSymlinks: a.NoFollowSymlinks,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("copied %d path(s) to %s", len(a.Sources), a.Destination), nil
		}),
		define("mv", "Move or rename files and directories", func(ctx context.Context, a moveArgs) (string, error) {
			if err := t.Mv(ctx, a.Sources, a.Destination, MvOptions{NoClobber: a.NoClobber, Update: a.Update}); err != nil {
				return "", err
			}
			return fmt.Sprintf("moved %d path(s) to %s", len(a.Sources), a.Destination), nil
		}),
		define("rm", "Remove files or directories", func(ctx context.Context, a removeArgs) (string, error) {
			paths := pathList(a.Paths, a.Path)
			if err := t.Rm(ctx, paths, RmOptions{Recursive: a.Recursive, Force: a.Force}); err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d path(s)", len(paths)), nil
		}),
		define("mkdir", "Create directories", func(ctx context.Context, a mkdirArgs) (string, error) {
			paths := pathList(a.Paths, a.Path)
			if err := t.Mkdir(ctx, paths, MkdirOptions{Parents: a.Parents, Mode: a.Mode}); err != nil {
				return "", err
			}
			return fmt.Sprintf("created %d director(ies)", len(paths)), nil
		}),
		define("touch", "Create files or update their timestamps", func(ctx context.Context, a touchArgs) (string, error) {
			paths := pathList(a.Paths, a.Path)
			err := t.Touch(ctx, paths, TouchOptions{
				NoCreate:     a.NoCreate,
				Access:       a.Access,
				Modification: a.Modification,
				Datetime:     a.Datetime,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("touched %d path(s)", len(paths)), nil
		}),
		define("base64", "Encode a file as base64 or decode a base64 file", func(ctx context.Context, a base64Args) (string, error) {
			return t.Base64(ctx, a.Path, a.Decode)
		}),
		define("hashsum", "Print checksums of files", func(ctx context.Context, a hashsumArgs) (string, error) {
			return t.Hashsum(ctx, pathList(a.Paths, a.Path), a.Algorithm)
		}),
		define("write", "Create or overwrite a text file", func(ctx context.Context, a writeArgs) (string, error) {
			n, err := t.Write(ctx, a.Path, a.Content, WriteOptions{Append: a.Append, CreateDirs: a.CreateDirs})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", n, a.Path), nil
		}),
		define(ShellToolName, "Run a command line in the sandbox root and return its exit status and output as JSON",
			func(ctx context.Context, a shellArgs) (string, error) {
				return runShellTool(ctx, t, a, filters)
			}),
	}
}

func headOptions(a headArgs) HeadOptions {
	return HeadOptions{Lines: a.Lines, Bytes: a.Bytes, Verbose: a.Verbose, Quiet: a.Quiet}
}

type shellToolOutput struct {
	Status     int    `json:"status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
}

func runShellTool(ctx context.Context, t *Toolkit, a shellArgs, filters OutputFilterConfig) (string, error) {
	shellType, err := shell.ParseType(a.Shell)
	if err != nil {
		return "", err
	}
	opts := shell.Options{
		Shell:         shellType,
		WorkingDir:    a.WorkingDir,
		Env:           a.Env,
		Timeout:       time.Duration(a.Timeout * float64(time.Second)),
		CaptureStdout: a.CaptureStdout == nil || *a.CaptureStdout,
		CaptureStderr: a.CaptureStderr == nil || *a.CaptureStderr,
	}
	result, err := t.Execute(ctx, a.Command, opts)
	if err != nil {
		return "", err
	}

	out := shellToolOutput{Status: result.Status, DurationMs: result.DurationMs}
	var cut bool
	out.Stdout, cut = filters.apply(result.Stdout)
	out.Truncated = cut
	out.Stderr, cut = filters.apply(result.Stderr)
	out.Truncated = out.Truncated || cut

	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
