package mcp

import (
	"context"

	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/persist"
)

// Controller abstracts the session for MCP tools. Local wraps an in-process
// orchestrator; HTTPClient drives a running instance through its control API.
type Controller interface {
	Status(ctx context.Context) (live.Snapshot, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context, save bool) error
	StartNextSet(ctx context.Context) error
	SetSide(ctx context.Context, side models.Side) error
	History(ctx context.Context, limit int) ([]persist.Entry, error)
}

// Session is the subset of *live.Orchestrator the local controller needs.
type Session interface {
	Snapshot() live.Snapshot
	Start(ctx context.Context) error
	Stop(ctx context.Context, save bool) error
	StartNextSet(ctx context.Context) error
	SetSide(ctx context.Context, side models.Side) error
}

// HistorySource lists recorded set results.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]persist.Entry, error)
}

// Local adapts an in-process session and ledger to Controller.
type Local struct {
	session Session
	history HistorySource
}

// Compile-time check: Local satisfies Controller.
var _ Controller = (*Local)(nil)

// NewLocal creates a Local controller. history may be nil.
func NewLocal(session Session, history HistorySource) *Local {
	return &Local{session: session, history: history}
}

func (l *Local) Status(ctx context.Context) (live.Snapshot, error) {
	return l.session.Snapshot(), nil
}

func (l *Local) Start(ctx context.Context) error { return l.session.Start(ctx) }

func (l *Local) Stop(ctx context.Context, save bool) error { return l.session.Stop(ctx, save) }

func (l *Local) StartNextSet(ctx context.Context) error { return l.session.StartNextSet(ctx) }

func (l *Local) SetSide(ctx context.Context, side models.Side) error {
	return l.session.SetSide(ctx, side)
}

func (l *Local) History(ctx context.Context, limit int) ([]persist.Entry, error) {
	if l.history == nil {
		return nil, nil
	}
	return l.history.History(ctx, limit)
}
