// Package mcpserver bridges the engine to AI coding assistants (Claude
// Code, Cursor, and similar MCP clients) over the Model Context Protocol,
// exposing the engine's query surface as typed tools (search, preview,
// status, scan, quick_search) instead of the raw Engine API.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/filecompass/compass/internal/engine"
	"github.com/filecompass/compass/pkg/version"
)

// Server is the MCP server fronting a single project Engine.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates an MCP server over eng and registers every tool in the
// engine's query surface.
func NewServer(eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: eng, logger: logger}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "file-compass",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Serve runs the server over stdio until ctx is cancelled. MCP requires
// stdout to carry only JSON-RPC traffic, so all diagnostic logging must go
// through s.logger (file-backed), never stdout.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server starting", slog.String("root", s.engine.Root()))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// registerTools wires the engine's operation table onto the MCP SDK's
// typed-handler registration, one mcp.AddTool call per tool.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over the indexed codebase: embeds the query, ranks chunks by cosine similarity against the Vector Index, and explains each match. Use for natural-language or conceptual queries.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quick_search",
		Description: "Low-latency filename, path-fragment, and symbol lookup that never calls the embedding backend. Use for exact or near-exact name queries, or when the embedding backend is unavailable.",
	}, s.handleQuickSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "preview",
		Description: "Return a line-numbered content slice of a file under the indexed project root. Rejects paths outside the project root.",
	}, s.handlePreview)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Report index size, last build time, and a file-type histogram for the current project.",
	}, s.handleStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scan",
		Description: "Build or incrementally update the index for the current project. Returns build statistics (files added/modified/removed, chunks indexed, duration).",
	}, s.handleScan)

	s.logger.Info("mcp tools registered", slog.Int("count", 5))
}
