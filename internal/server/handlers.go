package server

import (
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/claude/physiotrack/internal/capture"
	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/overlay"
	"github.com/claude/physiotrack/internal/session"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": snap.Feedback,
		"message":  snap.Message,
	})
}

// handleOverlay serves the session's latest rendered overlay as a transparent
// PNG. Without one it renders the drawing data at video size.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	var img image.Image = snap.OverlayImage
	if snap.OverlayImage == nil {
		canvas := overlay.NewImageCanvas(s.opts.FrameWidth, s.opts.FrameHeight)
		if s.opts.FontPath != "" {
			if err := canvas.LoadFont(s.opts.FontPath, s.opts.FontSize); err != nil {
				s.log.Warn("overlay font", "error", err)
			}
		}
		overlay.NewRenderer(s.opts.Visibility).Render(canvas, snap.Drawing)
		img = canvas.Image()
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.log.Error("encoding overlay", "error", err)
	}
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no reference media configured"})
		return
	}
	name := r.URL.Query().Get("exercise")
	if name == "" {
		name = s.session.Snapshot().Exercise.Name
	}
	path, found := s.media.Lookup(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"exercise": name,
		"path":     path,
		"fallback": !found,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := s.opts.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.history.History(r.Context(), limit)
	if err != nil {
		s.log.Error("history query", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.session.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Save bool `json:"save"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}
	s.respond(w, s.session.Stop(r.Context(), body.Save))
}

func (s *Server) handleNextSet(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.session.StartNextSet(r.Context()))
}

func (s *Server) handleSide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Side string `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	side, err := models.ParseSide(body.Side)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.respond(w, s.session.SetSide(r.Context(), side))
}

// respond writes the post-command snapshot, or maps err to a status code.
func (s *Server) respond(w http.ResponseWriter, err error) {
	var de *capture.DeviceError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.session.Snapshot())
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &de):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error(), "kind": string(de.Kind)})
	case errors.Is(err, live.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		s.log.Error("session command", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
