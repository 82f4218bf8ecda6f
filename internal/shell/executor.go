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

package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/sandbox"
)

// waitDelay bounds how long Wait blocks on pipes held by orphaned children
// after the process group has been killed.
const waitDelay = 2 * time.Second

// Executor launches shell commands rooted in one sandbox.
type Executor struct {
	sandbox *sandbox.Sandbox
	logger  zerolog.Logger
	shell   Type
	timeout time.Duration
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the audit logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithDefaultShell sets the shell used when Options.Shell is Default.
func WithDefaultShell(t Type) Option {
	return func(e *Executor) {
		e.shell = t
	}
}

// WithDefaultTimeout sets the timeout used when Options.Timeout is zero.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewExecutor returns an executor bound to sb and its policy.
func NewExecutor(sb *sandbox.Sandbox, opts ...Option) *Executor {
	e := &Executor{
		sandbox: sb,
		logger:  sb.Logger(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sandbox returns the sandbox the executor is bound to.
func (e *Executor) Sandbox() *sandbox.Sandbox {
	return e.sandbox
}

// Execute runs command and waits for it to finish. A non-zero exit status is
// reported in Result; only rejection, spawn failure, timeout and cancellation
// are errors.
func (e *Executor) Execute(ctx context.Context, command string, opts Options) (Result, error) {
	if err := e.authorize(command, opts.Env); err != nil {
		return Result{}, err
	}

	dir := opts.WorkingDir
	if dir == "" {
		dir = e.sandbox.Root()
	}
	workdir, err := e.sandbox.ValidateRead(dir)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(workdir)
	if err != nil {
		return Result{}, apperrors.FromOS("working directory", dir, err)
	}
	if !info.IsDir() {
		return Result{}, apperrors.Newf(apperrors.CodeInvalidInput, "working directory %q is not a directory", dir)
	}

	shellType := opts.Shell
	if shellType == Default && e.shell != Default {
		shellType = e.shell
	}
	argv, err := shellType.Command(command)
	if err != nil {
		return Result{}, err
	}

	timeout := e.timeoutFor(opts.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = overlayEnv(os.Environ(), opts.Env)
	cmd.WaitDelay = waitDelay
	configureProcessTree(cmd)

	captureOut, captureErr := opts.CaptureStdout, opts.CaptureStderr
	if !captureOut && !captureErr {
		captureOut, captureErr = true, true
	}
	limit := e.outputLimit()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if captureOut {
		cmd.Stdout = &limitedWriter{w: &stdout, remaining: limit}
	}
	if captureErr {
		cmd.Stderr = &limitedWriter{w: &stderr, remaining: limit}
	}

	e.logger.Debug().
		Str("shell", shellType.resolve().String()).
		Str("dir", workdir).
		Dur("timeout", timeout).
		Msg("Executing command")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeIO, "failed to start shell", err)
	}
	runErr := cmd.Wait()
	duration := time.Since(start)

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			e.logger.Warn().
				Dur("timeout", timeout).
				Dur("duration", duration).
				Msg("Command timed out")
			return Result{}, apperrors.Newf(apperrors.CodeTimedOut, "command timed out after %s", timeout)
		case errors.Is(ctx.Err(), context.Canceled):
			return Result{}, apperrors.Wrap(apperrors.CodeIO, "command canceled", ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, apperrors.Wrap(apperrors.CodeIO, "command failed", runErr)
		}
	}

	result := Result{
		Status:     cmd.ProcessState.ExitCode(),
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}
	e.logger.Debug().
		Int("status", result.Status).
		Int64("duration_ms", result.DurationMs).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("Command completed")
	return result, nil
}

func (e *Executor) authorize(command string, env map[string]string) error {
	if strings.TrimSpace(command) == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "command cannot be empty")
	}
	if e.sandbox.Overridden() {
		e.logger.Warn().
			Bool("override", true).
			Str("command", command).
			Msg("Command validation overridden")
		return nil
	}

	p := e.sandbox.Policy()
	if p.Commands.Enabled && !p.Commands.AllowShellExecution {
		e.logger.Warn().Str("level", string(p.Level)).Msg("Shell execution rejected")
		return apperrors.Newf(apperrors.CodePermission, "shell execution is not allowed at security level %s", p.Level)
	}
	if err := p.ValidateCommand(command); err != nil {
		e.logger.Warn().
			Err(err).
			Str("command", command).
			Str("level", string(p.Level)).
			Msg("Command rejected")
		return err
	}
	if err := p.ValidateEnv(env); err != nil {
		e.logger.Warn().
			Err(err).
			Strs("env", lo.Keys(env)).
			Str("level", string(p.Level)).
			Msg("Environment overlay rejected")
		return err
	}
	return nil
}

func (e *Executor) timeoutFor(requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = e.timeout
	}
	limits := e.sandbox.Policy().Resources
	if limits.Enabled && limits.MaxExecutionTime > 0 && timeout > limits.MaxExecutionTime {
		timeout = limits.MaxExecutionTime
	}
	return timeout
}

func (e *Executor) outputLimit() int64 {
	limits := e.sandbox.Policy().Resources
	if limits.Enabled && limits.MaxOutputSize > 0 {
		return limits.MaxOutputSize
	}
	return -1
}

// overlayEnv replaces or adds the entries of extra in base. Keys are
// compared case-insensitively on Windows.
func overlayEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, ok := lookupEnvKey(extra, key); ok {
			continue
		}
		out = append(out, entry)
	}
	keys := lo.Keys(extra)
	slices.Sort(keys)
	for _, key := range keys {
		out = append(out, key+"="+extra[key])
	}
	return out
}

// limitedWriter keeps at most remaining bytes and discards the rest without
// failing the writer. A negative remaining means no limit.
type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining < 0 {
		return lw.w.Write(p)
	}
	if lw.remaining == 0 {
		return len(p), nil
	}
	chunk := p
	if int64(len(chunk)) > lw.remaining {
		chunk = chunk[:lw.remaining]
	}
	n, err := lw.w.Write(chunk)
	lw.remaining -= int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
