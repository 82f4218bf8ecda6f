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

import "context"

// HostAPIVersion is the tool API revision this registry speaks. Tools
// declaring another revision are refused unless they opt in through Accepts.
const HostAPIVersion = "v1"

// RunFunc executes a tool against decoded JSON arguments.
type RunFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool is anything the registry can describe to a model and dispatch to.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
	Validate(args map[string]interface{}) error
	Version() string
	CompatibleWith(hostVersion string) bool
}

// FuncTool adapts plain functions to Tool. Built-in toolkit operations are
// all FuncTools produced by define.
type FuncTool struct {
	ToolName   string
	Summary    string
	Schema     map[string]interface{}
	Run        RunFunc
	Check      func(args map[string]interface{}) error
	APIVersion string
	Accepts    func(hostVersion string) bool
}

func (f *FuncTool) Name() string { return f.ToolName }
func (f *FuncTool) Description() string { return f.Summary }
func (f *FuncTool) Parameters() map[string]interface{} { return f.Schema }
func (f *FuncTool) Version() string { return f.APIVersion }

// Execute runs the tool. A FuncTool without Run produces no output.
func (f *FuncTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if f.Run == nil {
		return "", nil
	}
	return f.Run(ctx, args)
}

// Validate checks args without side effects.
func (f *FuncTool) Validate(args map[string]interface{}) error {
	if f.Check == nil {
		return nil
	}
	return f.Check(args)
}

func (f *FuncTool) CompatibleWith(hostVersion string) bool {
	if f.Accepts == nil {
		return hostVersion == HostAPIVersion
	}
	return f.Accepts(hostVersion)
}

// aliasedTool publishes a tool under a different name (prefixes, the shell
// alias) while delegating everything else.
type aliasedTool struct {
	Tool
	alias string
}

func (a aliasedTool) Name() string { return a.alias }

// Definition is the provider-neutral description of one registered tool.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// AnthropicTool is the shape of a tool entry in an Anthropic messages request.
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolResult is the outcome of one dispatched call. When the call fails,
// Result carries the rendered "<Kind>: message" text and Error the cause.
type ToolResult struct {
	CallID   string
	Function string
	Result   string
	Error    error
}
