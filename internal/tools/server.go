package tools

import (
	"github.com/mark3labs/mcp-go/server"
)

const instructions = `ALIS is an adaptive tutor. Start a session with alis_start, then drive it
with alis_event. Every result carries the session phase and allowedEvents;
send only those. Tests arrive as pendingTest questions: collect the
learner's answers and send them as test_submitted with payload.answers
keyed by question id.`

// NewServer registers every tool on a new MCP server.
func NewServer(sessions Sessions, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"alis",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	start := NewStartTool(sessions)
	s.AddTool(start.Definition(), start.Handle)

	event := NewEventTool(sessions)
	s.AddTool(event.Definition(), event.Handle)

	sess := NewSessionTool(sessions)
	s.AddTool(sess.Definition(), sess.Handle)

	log := NewLogTool(sessions)
	s.AddTool(log.Definition(), log.Handle)

	return s
}
