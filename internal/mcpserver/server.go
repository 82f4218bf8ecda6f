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

// Package mcpserver exposes a tool registry to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/policy"
	"agenttools/internal/tools"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultName    = "agenttools"
	defaultVersion = "0.1.0"
)

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
	Logger  zerolog.Logger
}

// Server bridges MCP tool calls to a registry. Calls are admitted through
// the policy's concurrency limit.
type Server struct {
	registry  *tools.Registry
	admission *policy.Admission
	mcp       *server.MCPServer
	logger    zerolog.Logger
}

// New registers every enabled registry tool on a new MCP server.
func New(registry *tools.Registry, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}

	s := &Server{
		registry:  registry,
		admission: policy.NewAdmission(registry.Toolkit().Policy().Resources),
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: opts.Logger,
	}

	for _, def := range registry.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encoding schema for %s: %w", def.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handler(def.Name))
	}
	s.logger.Debug().
		Int("tools", len(registry.Definitions())).
		Int64("slots", s.admission.Limit()).
		Msg("MCP server ready")
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in and out until ctx is canceled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		release, err := s.admission.Acquire(ctx)
		if err != nil {
			return mcp.NewToolResultError(apperrors.Render(err)), nil
		}
		defer release()

		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		encoded, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(apperrors.Render(apperrors.Wrap(apperrors.CodeInvalidInput, "encoding arguments", err))), nil
		}

		result := s.registry.ExecuteOpenAIToolCall(ctx, openai.ToolCall{
			ID:   uuid.NewString(),
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: string(encoded),
			},
		})
		if result.Error != nil {
			s.logger.Debug().Str("call_id", result.CallID).Str("tool", name).Err(result.Error).Msg("MCP tool call failed")
			return mcp.NewToolResultError(result.Result), nil
		}
		return mcp.NewToolResultText(result.Result), nil
	}
}
