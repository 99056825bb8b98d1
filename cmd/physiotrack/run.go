package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"tailscale.com/tsnet"

	"github.com/claude/physiotrack/internal/capture"
	"github.com/claude/physiotrack/internal/capture/webcam"
	"github.com/claude/physiotrack/internal/config"
	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/mcp"
	"github.com/claude/physiotrack/internal/media"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/overlay"
	"github.com/claude/physiotrack/internal/persist"
	"github.com/claude/physiotrack/internal/remote"
	"github.com/claude/physiotrack/internal/server"
	"github.com/claude/physiotrack/internal/session"
	"github.com/claude/physiotrack/internal/tui"
)

func runCmd() *cobra.Command {
	var (
		exercise string
		ailment  string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a live exercise session",
		Long: `Open the camera, analyse frames and count reps for one exercise.

The exercise comes from session.exercise in the config, or from the plan
fetched for --ailment. With --exercise the named exercise is picked from
the plan. The control API and MCP endpoint are served while the session
runs; the terminal dashboard is shown unless --headless is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if ailment == "" {
				ailment = cfg.Session.Ailment
			}
			return run(cmd.Context(), cfg, exercise, ailment, headless)
		},
	}

	cmd.Flags().StringVarP(&exercise, "exercise", "e", "", "exercise name (defaults to the configured one)")
	cmd.Flags().StringVarP(&ailment, "ailment", "a", "", "fetch the exercise plan for this ailment")
	cmd.Flags().BoolVar(&headless, "headless", false, "log to stdout instead of showing the dashboard")

	return cmd
}

func run(parent context.Context, cfg *config.Config, exerciseName, ailment string, headless bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Ledger.Dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	// The dashboard owns the terminal, so logs go to a file while it runs.
	logOut := os.Stdout
	if !headless {
		f, err := os.OpenFile(filepath.Join(cfg.Ledger.Dir, "physiotrack.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log := newLogger(logOut)
	log.Info("PhysioTrack starting", "version", Version)

	client := remote.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)

	ex, err := resolveExercise(ctx, cfg.Session.Exercise, client, exerciseName, ailment)
	if err != nil {
		return err
	}
	log.Info("exercise selected", "exercise", ex.Name, "target_reps", ex.TargetReps, "sets", ex.Sets)

	ledger, err := persist.OpenLedger(cfg.Ledger.Dir)
	if err != nil {
		return err
	}
	defer ledger.Close()
	if cfg.User.ID == "" {
		log.Warn("no user configured, completed sets are recorded locally only")
	}
	saver := persist.NewSaver(client, ledger, cfg.User.ID, log)

	camera := capture.NewController(webcam.New(cfg.Camera.Device, log), cfg.Camera.Width, cfg.Camera.Height, log)

	side, _ := models.ParseSide(cfg.Session.Side)
	machine, err := session.New(ex, session.Options{
		Side:           side,
		FeedbackLimit:  cfg.Session.FeedbackLimit,
		PauseThreshold: cfg.Session.PauseThreshold,
	})
	if err != nil {
		return err
	}

	canvas := overlay.NewImageCanvas(cfg.Camera.Width, cfg.Camera.Height)
	if cfg.Overlay.FontPath != "" {
		if err := canvas.LoadFont(cfg.Overlay.FontPath, cfg.Overlay.FontSize); err != nil {
			log.Warn("overlay font not loaded", "path", cfg.Overlay.FontPath, "error", err)
		}
	}

	opts := live.Options{
		SampleInterval:   cfg.Session.SampleInterval,
		WatchdogInterval: cfg.Session.WatchdogInterval,
		JPEGQuality:      cfg.Session.JPEGQuality,
		Canvas:           canvas,
		Renderer:         overlay.NewRenderer(cfg.Overlay.Visibility),
		OnComplete: func(s session.Summary) {
			log.Info("exercise complete", "exercise", s.Exercise, "sets", s.SetsCompleted, "accuracy", s.Accuracy)
		},
	}
	if len(cfg.Media.Cues) > 0 && len(cfg.Media.Player) > 0 {
		opts.Cues = media.NewCues(cfg.Media.Cues, media.CommandPlayer{Command: cfg.Media.Player, Timeout: 10 * time.Second}, log)
	}
	orch := live.New(machine, camera, client, saver, opts, log)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	var httpSrv *http.Server
	if cfg.Server.Enabled {
		srv := server.New(orch, ledger, media.NewLibrary(cfg.Media.Reference, cfg.Media.Fallback), server.Options{
			APIKey:      cfg.Server.APIKey,
			FrameWidth:  cfg.Camera.Width,
			FrameHeight: cfg.Camera.Height,
			Visibility:  cfg.Overlay.Visibility,
			FontPath:    cfg.Overlay.FontPath,
			FontSize:    cfg.Overlay.FontSize,
		}, log)
		srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcp.New(mcp.NewLocal(orch, ledger), Version, log)))

		listener, closeListener, err := listen(cfg, log)
		if err != nil {
			stop()
			<-orch.Done()
			return err
		}
		defer closeListener()

		httpSrv = &http.Server{Handler: srv}
		go func() {
			if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server error", "error", err)
			}
		}()
	}

	if headless {
		select {
		case <-ctx.Done():
		case <-orch.Done():
		}
	} else if err := tui.Run(orch); err != nil {
		log.Error("dashboard error", "error", err)
	}

	// Graceful shutdown
	log.Info("shutting down")
	stop()
	if err := <-runErr; err != nil {
		log.Error("session error", "error", err)
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}
	orch.Wait()

	snap := orch.Snapshot()
	log.Info("session stopped", "phase", snap.Phase, "sets_completed", snap.SetsCompleted)
	return nil
}

// listen opens the control API listener, on the tailnet when enabled.
func listen(cfg *config.Config, log *slog.Logger) (net.Listener, func(), error) {
	if cfg.Tailscale.Enabled {
		ts := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
			Logf:     func(format string, args ...any) { log.Debug(fmt.Sprintf(format, args...)) },
		}
		if err := ts.Start(); err != nil {
			return nil, nil, fmt.Errorf("tsnet start: %w", err)
		}
		ln, err := ts.Listen("tcp", ":80")
		if err != nil {
			ts.Close()
			return nil, nil, fmt.Errorf("tsnet listen: %w", err)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
		return ln, func() { ts.Close() }, nil
	}

	addr := cfg.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("server starting", "addr", addr, "mode", "local (no tailscale)")
	return ln, func() {}, nil
}

// PlanSource fetches exercise plans.
type PlanSource interface {
	GetPlan(ctx context.Context, ailment string) (*models.ExercisePlan, error)
}

// resolveExercise picks the session exercise. A configured exercise wins
// when no name is given or its name matches; otherwise the plan for ailment
// is fetched and searched (or its first exercise used).
func resolveExercise(ctx context.Context, configured models.Exercise, plans PlanSource, name, ailment string) (models.Exercise, error) {
	if configured.Name != "" && (name == "" || strings.EqualFold(configured.Name, name)) {
		return configured, configured.Validate()
	}
	if ailment == "" {
		if name != "" {
			return models.Exercise{}, fmt.Errorf("exercise %q is not configured; pass --ailment to look it up in a plan", name)
		}
		return models.Exercise{}, errors.New("no exercise configured; set session.exercise or pass --ailment")
	}

	plan, err := plans.GetPlan(ctx, ailment)
	if err != nil {
		return models.Exercise{}, err
	}
	if name == "" {
		if len(plan.Exercises) == 0 {
			return models.Exercise{}, fmt.Errorf("plan for %q has no exercises", ailment)
		}
		return plan.Exercises[0], plan.Exercises[0].Validate()
	}
	ex, ok := plan.Find(name)
	if !ok {
		return models.Exercise{}, fmt.Errorf("exercise %q not in plan for %q", name, ailment)
	}
	return ex, ex.Validate()
}
