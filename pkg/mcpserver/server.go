// Package mcpserver exposes the memory store as an MCP stdio server so LLM
// clients can search, write, update, delete and list memories as tools.
package mcpserver

import (
	"github.com/harun/mnemo/pkg/memory"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Options tunes the tool defaults exposed to clients.
type Options struct {
	// SearchThreshold is used when a client omits the threshold argument.
	SearchThreshold float64
	// SearchLimit is used when a client omits the limit argument.
	SearchLimit int
}

// Server wires the five memory tools onto an MCP stdio server.
type Server struct {
	store  *memory.Store
	opts   Options
	logger zerolog.Logger
	mcp    *server.MCPServer
}

// New builds the MCP server and registers the memory tools.
func New(store *memory.Store, version string, opts Options, logger zerolog.Logger) *Server {
	if opts.SearchThreshold == 0 {
		opts.SearchThreshold = 0.5
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}

	s := &Server{
		store:  store,
		opts:   opts,
		logger: logger,
		mcp: server.NewMCPServer(
			"mnemo",
			version,
			server.WithLogging(),
		),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout until the client hangs up.
func (s *Server) ServeStdio() error {
	s.logger.Info().Msg("MCP server listening on stdio")
	return server.ServeStdio(s.mcp)
}
