package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/expertroute/internal/routing"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that lets agents ask, forward and answer
// questions on behalf of a user.
type Server struct {
	routing *routing.Service
	mcp     *server.MCPServer
}

// NewServer creates a new MCP server backed by svc.
func NewServer(svc *routing.Service) *Server {
	s := &Server{routing: svc}

	s.mcp = server.NewMCPServer(
		"expertroute",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(submitQuestionTool, s.handleSubmitQuestion)
	s.mcp.AddTool(viewQuestionTool, s.handleViewQuestion)
	s.mcp.AddTool(questionFeedTool, s.handleQuestionFeed)
	s.mcp.AddTool(respondTool, s.handleRespond)
	s.mcp.AddTool(listResponsesTool, s.handleListResponses)
	s.mcp.AddTool(voteResponseTool, s.handleVoteResponse)
	s.mcp.AddTool(acceptResponseTool, s.handleAcceptResponse)
	s.mcp.AddTool(forwardQuestionTool, s.handleForwardQuestion)
	s.mcp.AddTool(questionMatchesTool, s.handleQuestionMatches)
	s.mcp.AddTool(myMatchesTool, s.handleMyMatches)
	s.mcp.AddTool(closeQuestionTool, s.handleCloseQuestion)
	s.mcp.AddTool(similarQuestionsTool, s.handleSimilarQuestions)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
