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

// Package tools implements the sandboxed file, text and shell tools and the
// registry that exposes them to an agent as named, schema-described calls.
package tools

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agenttools/internal/policy"
	"agenttools/internal/sandbox"
	"agenttools/internal/shell"
)

// Toolkit binds one sandbox, one shell executor and the active policy. It is
// immutable and safe for concurrent use; reconfiguration means building a
// new Toolkit.
type Toolkit struct {
	sandbox  *sandbox.Sandbox
	executor *shell.Executor
	limits   Limits
	logger   zerolog.Logger
}

type toolkitOptions struct {
	logger       zerolog.Logger
	limits       Limits
	shell        shell.Type
	shellTimeout time.Duration
	override     bool
}

// ToolkitOption customizes a Toolkit.
type ToolkitOption func(*toolkitOptions)

// WithLogger sets the logger shared by the sandbox, executor and tools.
func WithLogger(logger zerolog.Logger) ToolkitOption {
	return func(o *toolkitOptions) {
		o.logger = logger
	}
}

// WithLimits sets traversal limits.
func WithLimits(limits Limits) ToolkitOption {
	return func(o *toolkitOptions) {
		o.limits = limits
	}
}

// WithShell sets the default shell and timeout for Execute.
func WithShell(t shell.Type, timeout time.Duration) ToolkitOption {
	return func(o *toolkitOptions) {
		o.shell = t
		o.shellTimeout = timeout
	}
}

// WithOverride bypasses sandbox validation. The policy must allow it.
func WithOverride(enabled bool) ToolkitOption {
	return func(o *toolkitOptions) {
		o.override = enabled
	}
}

// NewToolkit builds a toolkit for cfg.
func NewToolkit(cfg sandbox.Config, opts ...ToolkitOption) (*Toolkit, error) {
	o := toolkitOptions{logger: zerolog.Nop(), limits: DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	sb, err := sandbox.New(cfg, sandbox.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if o.override {
		sb, err = sb.WithOverride(true)
		if err != nil {
			return nil, err
		}
	}
	return newToolkit(sb, o), nil
}

// NewToolkitWithRoot builds a toolkit rooted at root with the default policy.
func NewToolkitWithRoot(root string, opts ...ToolkitOption) (*Toolkit, error) {
	return NewToolkit(sandbox.NewConfigWithPolicy(root, policy.Default()), opts...)
}

// NewToolkitFromSandbox wraps an existing sandbox.
func NewToolkitFromSandbox(sb *sandbox.Sandbox, opts ...ToolkitOption) *Toolkit {
	o := toolkitOptions{logger: sb.Logger(), limits: DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	return newToolkit(sb, o)
}

func newToolkit(sb *sandbox.Sandbox, o toolkitOptions) *Toolkit {
	return &Toolkit{
		sandbox: sb,
		executor: shell.NewExecutor(sb,
			shell.WithLogger(o.logger),
			shell.WithDefaultShell(o.shell),
			shell.WithDefaultTimeout(o.shellTimeout),
		),
		limits: normalizeLimits(o.limits),
		logger: o.logger,
	}
}

// Sandbox returns the sandbox every tool validates against.
func (t *Toolkit) Sandbox() *sandbox.Sandbox {
	return t.sandbox
}

// Policy returns the effective security policy.
func (t *Toolkit) Policy() policy.SecurityPolicy {
	return t.sandbox.Policy()
}

// Root returns the canonical sandbox root.
func (t *Toolkit) Root() string {
	return t.sandbox.Root()
}

// Execute runs command through the shell executor.
func (t *Toolkit) Execute(ctx context.Context, command string, opts shell.Options) (shell.Result, error) {
	return t.executor.Execute(ctx, command, opts)
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func requirePaths(paths []string) error {
	if len(paths) == 0 {
		return errInvalidInput("at least one path is required")
	}
	return nil
}
