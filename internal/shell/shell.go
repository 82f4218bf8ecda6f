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

// Package shell runs command lines through a host shell inside the sandbox
// root, bounded by the active security policy.
package shell

import (
	"os/exec"
	"runtime"
	"strings"
	"time"

	apperrors "agenttools/internal/errors"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Type selects the shell used to interpret a command line.
type Type int

const (
	// Default resolves to PowerShell on Windows and Bash elsewhere.
	Default Type = iota
	PowerShell
	Cmd
	Bash
)

func (t Type) String() string {
	switch t {
	case PowerShell:
		return "powershell"
	case Cmd:
		return "cmd"
	case Bash:
		return "bash"
	default:
		return "default"
	}
}

// ParseType maps a configuration or tool argument to a shell type. An empty
// value selects Default.
func ParseType(value string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return Default, nil
	case "powershell", "pwsh":
		return PowerShell, nil
	case "cmd", "cmd.exe":
		return Cmd, nil
	case "bash", "sh":
		return Bash, nil
	default:
		return Default, apperrors.Newf(apperrors.CodeInvalidInput, "unknown shell %q (expected powershell, cmd or bash)", value)
	}
}

// HostDefault returns the shell used for Default on this host.
func HostDefault() Type {
	if runtime.GOOS == "windows" {
		return PowerShell
	}
	return Bash
}

func (t Type) resolve() Type {
	if t == Default {
		return HostDefault()
	}
	return t
}

// launcher is the program and leading arguments for one shell type.
type launcher struct {
	candidates []string
	args       []string
}

var launchers = map[Type]launcher{
	PowerShell: {candidates: []string{"pwsh", "powershell"}, args: []string{"-NoProfile", "-NonInteractive", "-Command"}},
	Cmd:        {candidates: []string{"cmd"}, args: []string{"/C"}},
	Bash:       {candidates: []string{"bash", "sh"}, args: []string{"-c"}},
}

// Command returns the argv that runs command under t. The first available
// candidate program on PATH is used.
func (t Type) Command(command string) ([]string, error) {
	l, ok := launchers[t.resolve()]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnsupported, "unsupported shell %s", t)
	}
	for _, candidate := range l.candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		argv := append([]string{path}, l.args...)
		return append(argv, command), nil
	}
	return nil, apperrors.Newf(apperrors.CodeNotFound, "shell %s is not available on this host", t.resolve())
}

// Available reports whether a program for t can be found on PATH.
func (t Type) Available() bool {
	_, err := t.Command("")
	return err == nil
}

// Options tune a single execution.
type Options struct {
	Shell Type
	// WorkingDir defaults to the sandbox root and is validated for reading.
	WorkingDir string
	// Env is overlaid on the host environment.
	Env     map[string]string
	Timeout time.Duration
	// When neither capture flag is set both streams are captured.
	CaptureStdout bool
	CaptureStderr bool
}

// DefaultOptions captures both streams with the default shell and timeout.
func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		CaptureStdout: true,
		CaptureStderr: true,
	}
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Status     int    `json:"status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.Status == 0
}
