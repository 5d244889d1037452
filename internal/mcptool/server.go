package mcptool

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ShayCichocki/appforge/internal/state"
)

// NewServer creates an MCP server with the appforge tools registered.
// runs may be nil, in which case get_run is not offered.
func NewServer(version string, runner Runner, runs state.RunStore) *server.MCPServer {
	s := server.NewMCPServer(
		"appforge",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	publishTool := NewPublishTool(runner)
	s.AddTool(publishTool.Definition(), publishTool.Handle)

	if runs != nil {
		runTool := NewRunTool(runs)
		s.AddTool(runTool.Definition(), runTool.Handle)
	}

	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
