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
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"

	apperrors "agenttools/internal/errors"
)

// RegistryOptions configure which tools a Registry exposes and how calls
// are throttled and filtered.
type RegistryOptions struct {
	// Prefix is prepended to every exposed tool name.
	Prefix string
	// Disabled lists unprefixed tool names that are refused.
	Disabled      []string
	RateLimits    RateLimitConfig
	OutputFilters OutputFilterConfig
	Timeouts      TimeoutConfig
	// Legacy also registers the deprecated file and shell tools.
	Legacy bool
	Logger zerolog.Logger
}

// DefaultRegistryOptions returns the default registry configuration.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		RateLimits:    DefaultRateLimitConfig(),
		OutputFilters: DefaultOutputFilterConfig(),
		Timeouts:      DefaultTimeoutConfig(),
		Logger:        zerolog.Nop(),
	}
}

// registeredTool is one exposed name. base is the canonical tool it runs,
// shared by aliases, and exposed is the unprefixed name it answers to.
type registeredTool struct {
	tool    Tool
	base    string
	exposed string
	limiter *callLimiter
}

// Registry dispatches tool calls by name to the toolkit. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	toolkit  *Toolkit
	prefix   string
	tools    map[string]*registeredTool
	disabled map[string]bool
	limits   RateLimitConfig
	timeouts TimeoutConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRegistry registers every toolkit operation, the shell tool and its
// alias.
func NewRegistry(t *Toolkit, opts RegistryOptions) *Registry {
	r := &Registry{
		toolkit:  t,
		prefix:   opts.Prefix,
		tools:    make(map[string]*registeredTool),
		disabled: lo.SliceToMap(opts.Disabled, func(name string) (string, bool) { return name, true }),
		limits:   opts.RateLimits,
		timeouts: opts.Timeouts,
		logger:   opts.Logger,
		now:      time.Now,
	}

	var outputLimit int64
	if p := t.Policy(); p.Resources.Enabled {
		outputLimit = p.Resources.MaxOutputSize
	}
	filters := opts.OutputFilters.normalize(outputLimit)
	register := func(tool Tool) {
		if err := r.RegisterTool(tool); err != nil {
			panic(err)
		}
	}
	for _, tool := range builtinTools(t, filters) {
		register(tool)
		if tool.Name() == ShellToolName {
			if err := r.registerAlias(ShellToolAlias, ShellToolName); err != nil {
				panic(err)
			}
		}
	}
	if opts.Legacy {
		for _, tool := range legacyTools(t, filters) {
			register(tool)
		}
	}
	return r
}

// RegisterTool adds a tool under its name plus the registry prefix.
func (r *Registry) RegisterTool(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("%w: tool must have a name", ErrInvalidArguments)
	}
	if !tool.CompatibleWith(HostAPIVersion) {
		return fmt.Errorf("tool %s (version %s) is not compatible with host API %s", tool.Name(), tool.Version(), HostAPIVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	base := tool.Name()
	name := r.prefix + base
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if r.prefix != "" {
		tool = aliasedTool{Tool: tool, alias: name}
	}
	r.tools[name] = &registeredTool{
		tool:    tool,
		base:    base,
		exposed: base,
		limiter: r.limits.limiterFor(base, r.now),
	}
	return nil
}

// registerAlias exposes the tool registered as target under alias as well.
// Both names share the target's rate limiter, timeout and disabled state.
func (r *Registry) registerAlias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tools[r.prefix+target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, target)
	}
	name := r.prefix + alias
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = &registeredTool{
		tool:    aliasedTool{Tool: entry.tool, alias: name},
		base:    entry.base,
		exposed: alias,
		limiter: entry.limiter,
	}
	return nil
}

// isDisabled reports whether entry is switched off, either by its canonical
// name or by the name it is exposed under.
func (r *Registry) isDisabled(entry *registeredTool) bool {
	return r.disabled[entry.base] || r.disabled[entry.exposed]
}

// Toolkit returns the toolkit the registry dispatches to.
func (r *Registry) Toolkit() *Toolkit {
	return r.toolkit
}

// GetToolNames returns the exposed tool names in sorted order.
func (r *Registry) GetToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.tools)
	slices.Sort(names)
	return names
}

// BaseToolNames returns the registered tool names without the prefix.
func (r *Registry) BaseToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Uniq(lo.MapToSlice(r.tools, func(_ string, entry *registeredTool) string { return entry.exposed }))
	slices.Sort(names)
	return names
}

// Definitions returns name, description and schema of every enabled tool
// sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for name, entry := range r.tools {
		if r.isDisabled(entry) {
			continue
		}
		defs = append(defs, Definition{
			Name:        name,
			Description: entry.tool.Description(),
			Parameters:  entry.tool.Parameters(),
		})
	}
	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// OpenAITools returns the registry as OpenAI tool definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	return lo.Map(r.Definitions(), func(def Definition, _ int) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	})
}

// AnthropicTools returns the registry in the Anthropic tool format.
func (r *Registry) AnthropicTools() []AnthropicTool {
	return lo.Map(r.Definitions(), func(def Definition, _ int) AnthropicTool {
		return AnthropicTool{Name: def.Name, Description: def.Description, InputSchema: def.Parameters}
	})
}

// Call runs the named tool with JSON arguments. On failure the returned
// string is the rendered "<Kind>: message" form of the error.
func (r *Registry) Call(ctx context.Context, name, argsJSON string) (string, error) {
	result := r.call(ctx, uuid.NewString(), name, argsJSON)
	return result.Result, result.Error
}

// ExecuteOpenAIToolCall executes an OpenAI tool call payload.
func (r *Registry) ExecuteOpenAIToolCall(ctx context.Context, call openai.ToolCall) *ToolResult {
	callID := call.ID
	if callID == "" {
		callID = uuid.NewString()
	}
	if call.Function.Name == "" {
		err := classify(fmt.Errorf("%w: tool call missing function name", ErrInvalidArguments))
		return &ToolResult{CallID: callID, Result: apperrors.Render(err), Error: err}
	}
	return r.call(ctx, callID, call.Function.Name, call.Function.Arguments)
}

// ValidateToolCall checks that a call names a known enabled tool with valid
// arguments without running it. It returns nil when the call is valid.
func (r *Registry) ValidateToolCall(name, argsJSON string) error {
	entry, err := r.lookup(name)
	if err != nil {
		return classify(err)
	}
	args, err := parseToolArgs(argsJSON)
	if err != nil {
		return classify(wrapArgs(err))
	}
	return classify(entry.tool.Validate(args))
}

func (r *Registry) lookup(name string) (*registeredTool, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrToolNotFound, name, strings.Join(r.GetToolNames(), ", "))
	}
	if r.isDisabled(entry) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotAllowed, name)
	}
	return entry, nil
}

func (r *Registry) call(ctx context.Context, callID, name, argsJSON string) *ToolResult {
	result := &ToolResult{CallID: callID, Function: name}
	start := r.now()
	log := r.logger.With().Str("call_id", callID).Str("tool", name).Logger()
	log.Debug().Msg("Tool call started")

	output, err := r.dispatch(ctx, name, argsJSON)
	if err != nil {
		err = classify(err)
		result.Error = err
		result.Result = apperrors.Render(err)
		log.Debug().
			Str("code", string(apperrors.CodeOf(err))).
			Dur("duration", r.now().Sub(start)).
			Msg("Tool call failed")
		return result
	}
	result.Result = output

	preview, _ := clipRunes(output, 200)
	log.Debug().
		Dur("duration", r.now().Sub(start)).
		Int("bytes", len(output)).
		Str("result", preview).
		Msg("Tool call finished")
	return result
}

func (r *Registry) dispatch(ctx context.Context, name, argsJSON string) (output string, err error) {
	entry, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	if err := entry.limiter.Allow(); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	args, err := parseToolArgs(argsJSON)
	if err != nil {
		return "", wrapArgs(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := r.timeouts.For(entry.base); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error().Str("tool", name).Interface("panic", recovered).Msg("Tool panicked")
			output, err = "", panicError(name, recovered)
		}
	}()
	return entry.tool.Execute(ctx, args)
}
