// Package media resolves exercise reference media and plays audio cues for
// feedback messages. Both lookups are plain maps supplied by configuration.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/claude/physiotrack/internal/models"
)

// Library maps exercise names to reference images or animations.
type Library struct {
	paths    map[string]string
	fallback string
}

// NewLibrary creates a library. Keys are matched case-insensitively.
func NewLibrary(paths map[string]string, fallback string) *Library {
	lib := &Library{paths: make(map[string]string, len(paths)), fallback: fallback}
	for name, p := range paths {
		lib.paths[strings.ToLower(strings.TrimSpace(name))] = p
	}
	return lib
}

// Lookup returns the reference media for exercise, or the fallback. found is
// false when the fallback was used.
func (l *Library) Lookup(exercise string) (path string, found bool) {
	if p, ok := l.paths[strings.ToLower(strings.TrimSpace(exercise))]; ok {
		return p, true
	}
	return l.fallback, false
}

// Player plays one audio file.
type Player interface {
	Play(ctx context.Context, path string) error
}

// CommandPlayer plays audio by running an external command with the file
// path appended, e.g. ["paplay"] or ["afplay"].
type CommandPlayer struct {
	Command []string
	Timeout time.Duration
}

func (p CommandPlayer) Play(ctx context.Context, path string) error {
	if len(p.Command) == 0 {
		return fmt.Errorf("no audio command configured")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	args := append(append([]string{}, p.Command[1:]...), path)
	if out, err := exec.CommandContext(ctx, p.Command[0], args...).CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w: %s", p.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Cues plays the cue mapped to a feedback message, if any. Messages are
// matched exactly.
type Cues struct {
	cues   map[string]string
	player Player
	logger *slog.Logger
}

// NewCues creates a cue table. A nil player disables playback.
func NewCues(cues map[string]string, player Player, logger *slog.Logger) *Cues {
	return &Cues{cues: cues, player: player, logger: logger}
}

// Cue returns the audio file for message.
func (c *Cues) Cue(message string) (string, bool) {
	p, ok := c.cues[message]
	return p, ok
}

// Play plays the cues for items in order and reports how many played.
// Playback failures are logged and otherwise ignored.
func (c *Cues) Play(ctx context.Context, items []models.FeedbackItem) int {
	if c.player == nil {
		return 0
	}
	played := 0
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		path, ok := c.Cue(it.Message)
		if !ok {
			continue
		}
		if err := c.player.Play(ctx, path); err != nil {
			c.logger.Debug("audio cue failed", "message", it.Message, "path", path, "error", err)
			continue
		}
		played++
	}
	return played
}
