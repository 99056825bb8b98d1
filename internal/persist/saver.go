// Package persist submits finished sets to the backend at most once per
// completion event and keeps a local history of what was sent.
package persist

import (
	"context"
	"log/slog"

	"github.com/claude/physiotrack/internal/models"
	"github.com/google/uuid"
)

// Record is one set result to persist.
type Record struct {
	EventID   uuid.UUID
	SessionID uuid.UUID
	Exercise  string
	SetNumber int
	Reps      int
	Accuracy  float64
	AutoSave  bool
}

// Outcome reports what Save did with a record.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeSkipped
	OutcomeDuplicate
	OutcomeLocalOnly
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeLocalOnly:
		return "local_only"
	default:
		return "failed"
	}
}

// SessionStore is the backend endpoint that stores sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, req models.SaveSessionRequest) error
}

// Journal deduplicates completion events.
type Journal interface {
	Claim(ctx context.Context, rec Record) (bool, error)
	Finish(ctx context.Context, eventID uuid.UUID, status Status, errMsg string) error
}

// Saver persists set results. Failures are logged and never retried.
type Saver struct {
	store   SessionStore
	journal Journal
	userID  string
	logger  *slog.Logger
}

// NewSaver creates a Saver. An empty userID disables remote submission;
// a nil journal disables deduplication and local history.
func NewSaver(store SessionStore, journal Journal, userID string, logger *slog.Logger) *Saver {
	return &Saver{store: store, journal: journal, userID: userID, logger: logger}
}

// Save persists rec. Records with zero reps are ignored.
func (s *Saver) Save(ctx context.Context, rec Record) Outcome {
	log := s.logger.With("event_id", rec.EventID, "exercise", rec.Exercise, "set", rec.SetNumber, "reps", rec.Reps)
	if rec.Reps <= 0 {
		log.Debug("save skipped: no reps")
		return OutcomeSkipped
	}

	if s.journal != nil {
		claimed, err := s.journal.Claim(ctx, rec)
		if err != nil {
			log.Error("claiming save event", "error", err)
			return OutcomeFailed
		}
		if !claimed {
			log.Warn("save event already handled")
			return OutcomeDuplicate
		}
	}

	if s.userID == "" {
		log.Info("no user configured, set recorded locally only")
		s.finish(ctx, log, rec.EventID, StatusLocal, "")
		return OutcomeLocalOnly
	}

	err := s.store.SaveSession(ctx, models.SaveSessionRequest{
		UserID:        s.userID,
		ExerciseName:  rec.Exercise,
		RepsCompleted: rec.Reps,
		AccuracyScore: rec.Accuracy,
	})
	if err != nil {
		log.Error("saving session", "auto_save", rec.AutoSave, "error", err)
		s.finish(ctx, log, rec.EventID, StatusFailed, err.Error())
		return OutcomeFailed
	}

	log.Info("session saved", "accuracy", rec.Accuracy, "auto_save", rec.AutoSave)
	s.finish(ctx, log, rec.EventID, StatusSaved, "")
	return OutcomeSaved
}

func (s *Saver) finish(ctx context.Context, log *slog.Logger, id uuid.UUID, status Status, errMsg string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Finish(context.WithoutCancel(ctx), id, status, errMsg); err != nil {
		log.Warn("recording save status", "status", status, "error", err)
	}
}
