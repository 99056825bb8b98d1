package mcp

import (
	"context"

	"github.com/claude/physiotrack/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultHistoryLimit = 20

// --- Tool definitions ---

var toolGetSessionStatus = mcp.NewTool("get_session_status",
	mcp.WithDescription("Get the live session: phase (idle, active, awaiting_next_set, completed), reps in the current set, completed sets, accuracy, joint angle, analysed side, recent feedback and the status message."),
)

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start the first set. Only valid while the session is idle. Opens the camera and begins frame analysis."),
)

var toolStopSession = mcp.NewTool("stop_session",
	mcp.WithDescription("Stop the current set and release the camera. With save=true the partial set is recorded when at least one rep was counted."),
	mcp.WithBoolean("save", mcp.Description("Record the partial set. Defaults to false.")),
)

var toolStartNextSet = mcp.NewTool("start_next_set",
	mcp.WithDescription("Begin the next set after one was completed. Only valid while awaiting the next set."),
)

var toolSetAnalysisSide = mcp.NewTool("set_analysis_side",
	mcp.WithDescription("Choose which body side is analysed. Changing side during an active set restarts the set from zero reps."),
	mcp.WithString("side", mcp.Required(), mcp.Description("Body side to analyse"), mcp.Enum("auto", "left", "right")),
)

var toolGetHistory = mcp.NewTool("get_history",
	mcp.WithDescription("List recorded set results, newest first, with reps, accuracy, whether the save was automatic, and whether it reached the backend."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of entries. Defaults to 20.")),
)

// --- Tool handlers ---

func (h *handlers) getSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.ctrl.Status(ctx)
	if err != nil {
		h.log.Error("mcp get_session_status", "error", err)
		return mcp.NewToolResultError("status failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(snap)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.command(ctx, "start_session", h.ctrl.Start(ctx))
}

func (h *handlers) stopSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	save := req.GetBool("save", false)
	return h.command(ctx, "stop_session", h.ctrl.Stop(ctx, save))
}

func (h *handlers) startNextSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.command(ctx, "start_next_set", h.ctrl.StartNextSet(ctx))
}

func (h *handlers) setAnalysisSide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("side")
	if err != nil {
		return mcp.NewToolResultError("side parameter is required"), nil
	}
	side, err := models.ParseSide(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.command(ctx, "set_analysis_side", h.ctrl.SetSide(ctx, side))
}

func (h *handlers) getHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	entries, err := h.ctrl.History(ctx, limit)
	if err != nil {
		h.log.Error("mcp get_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(entries)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// command reports a control command's error, or the session state after it.
func (h *handlers) command(ctx context.Context, name string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		h.log.Warn("mcp "+name, "error", err)
		return mcp.NewToolResultError(name + " failed: " + err.Error()), nil
	}
	return h.getSessionStatus(ctx, mcp.CallToolRequest{})
}
