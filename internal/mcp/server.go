package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ctrl Controller, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("PhysioTrack", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("PhysioTrack live exercise session. Check progress, start and stop sets, pick the analysed body side, and review recorded set results."),
	)

	h := &handlers{ctrl: ctrl, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetSessionStatus, Handler: h.getSessionStatus},
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolStopSession, Handler: h.stopSession},
		server.ServerTool{Tool: toolStartNextSet, Handler: h.startNextSet},
		server.ServerTool{Tool: toolSetAnalysisSide, Handler: h.setAnalysisSide},
		server.ServerTool{Tool: toolGetHistory, Handler: h.getHistory},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resSessionStatus, Handler: h.sessionStatus},
		server.ServerResource{Resource: resRecentSets, Handler: h.recentSets},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ctrl Controller
	log  *slog.Logger
}

// --- Resource definitions ---

var resSessionStatus = mcp.NewResource(
	"physiotrack://session",
	"Session Status",
	mcp.WithResourceDescription("Current phase, rep count, completed sets, latest feedback and status message of the live session"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSets = mcp.NewResource(
	"physiotrack://recent_sets",
	"Recent Sets",
	mcp.WithResourceDescription("The most recent recorded set results with their save status"),
	mcp.WithMIMEType("application/json"),
)
