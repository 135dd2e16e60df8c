package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/indexer"
	"github.com/shareandimprove/archivist/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "archivist"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Runner executes an index run. *indexer.Indexer satisfies it.
type Runner interface {
	Run(ctx context.Context, opts indexer.Options) (*indexer.Statistics, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	runner  Runner
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance. The caller owns store and
// closes it after Serve returns.
func NewServer(store storage.Storage, runner Runner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		storage: store,
		runner:  runner,
		logger:  logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDirectoryTool(), s.handleIndexDirectory)
	s.mcp.AddTool(getIndexStatusTool(), s.handleGetIndexStatus)
	s.mcp.AddTool(listRunsTool(), s.handleListRuns)
	s.mcp.AddTool(getFileTool(), s.handleGetFile)
}
