// Package live runs a session: it owns the state machine from one goroutine,
// samples the camera on a ticker while a set is active, and carries out the
// camera, persistence and completion effects of each transition.
package live

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/overlay"
	"github.com/claude/physiotrack/internal/persist"
	"github.com/claude/physiotrack/internal/session"
)

// ErrStopped is returned by commands sent after Run has returned.
var ErrStopped = errors.New("orchestrator stopped")

// cueBacklog is how many feedback batches may wait for the cue player.
// Later batches are dropped until it catches up.
const cueBacklog = 2

// Camera is the capture side of a session.
type Camera interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Snapshot() (image.Image, error)
}

// Analyzer submits frames for pose analysis.
type Analyzer interface {
	AnalyzeFrame(ctx context.Context, req models.AnalyzeFrameRequest) (*models.AnalyzeFrameResponse, error)
}

// Saver persists set results.
type Saver interface {
	Save(ctx context.Context, rec persist.Record) persist.Outcome
}

// copier is a canvas whose pixels can be copied out.
type copier interface {
	Copy() *image.RGBA
}

// CuePlayer plays audio cues for feedback.
type CuePlayer interface {
	Play(ctx context.Context, items []models.FeedbackItem) int
}

// Options tunes an Orchestrator. Zero values take the defaults.
type Options struct {
	SampleInterval   time.Duration
	WatchdogInterval time.Duration
	SaveTimeout      time.Duration
	JPEGQuality      int

	// Canvas, when set, is redrawn whenever the drawing data changes. A
	// canvas that can be copied out is published as Snapshot.OverlayImage.
	Canvas   overlay.Canvas
	Renderer *overlay.Renderer

	Cues       CuePlayer
	OnComplete func(session.Summary)
}

func (o *Options) defaults() {
	if o.SampleInterval <= 0 {
		o.SampleInterval = 500 * time.Millisecond
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = time.Second
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 30 * time.Second
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.Canvas != nil && o.Renderer == nil {
		o.Renderer = overlay.NewRenderer(overlay.DefaultVisibility)
	}
}

// Snapshot is an immutable copy of the session published after every change.
type Snapshot struct {
	session.View
	Capturing bool          `json:"capturing"`
	InFlight  bool          `json:"in_flight"`
	Overlay   overlay.Stats `json:"overlay"`
	UpdatedAt time.Time     `json:"updated_at"`

	// OverlayImage is the last rendered overlay, nil without a copyable canvas.
	OverlayImage *image.RGBA `json:"-"`
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdNextSet
	cmdSide
)

type command struct {
	kind  commandKind
	save  bool
	side  models.Side
	reply chan error
}

type result struct {
	stamp session.Stamp
	resp  *models.AnalyzeFrameResponse
	err   error
}

// Orchestrator drives one session.
type Orchestrator struct {
	machine  *session.Machine
	camera   Camera
	analyzer Analyzer
	saver    Saver
	opts     Options
	logger   *slog.Logger

	cmds    chan command
	results chan result
	cues    chan []models.FeedbackItem
	updates chan struct{}
	done    chan struct{}
	started atomic.Bool
	snap    atomic.Pointer[Snapshot]
	saves   sync.WaitGroup
	player  sync.WaitGroup

	// Owned by the Run goroutine.
	runCtx     context.Context
	saveCtx    context.Context
	sampleT    *time.Ticker
	watchT     *time.Ticker
	seq        uint64
	pending    *session.Stamp
	cancelReq  context.CancelFunc
	capturing  bool
	completed  bool
	rendered   bool
	drawn      *models.DrawingData
	lastRender overlay.Stats
	lastImage  *image.RGBA
}

// New creates an orchestrator around machine. Call Run to start it.
func New(machine *session.Machine, camera Camera, analyzer Analyzer, saver Saver, opts Options, logger *slog.Logger) *Orchestrator {
	opts.defaults()
	o := &Orchestrator{
		machine:  machine,
		camera:   camera,
		analyzer: analyzer,
		saver:    saver,
		opts:     opts,
		logger:   logger.With("session_id", machine.ID()),
		cmds:     make(chan command),
		results:  make(chan result),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if opts.Cues != nil {
		o.cues = make(chan []models.FeedbackItem, cueBacklog)
	}
	o.publish()
	return o
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot { return *o.snap.Load() }

// Updates signals after each published change. Signals coalesce.
func (o *Orchestrator) Updates() <-chan struct{} { return o.updates }

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Wait blocks until every save started by the session has finished and the
// cue player has exited.
func (o *Orchestrator) Wait() {
	o.saves.Wait()
	o.player.Wait()
}

// Start opens the camera and begins the first set.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.send(ctx, command{kind: cmdStart})
}

// Stop ends the session, saving the current set when save is set.
func (o *Orchestrator) Stop(ctx context.Context, save bool) error {
	return o.send(ctx, command{kind: cmdStop, save: save})
}

// StartNextSet begins the next set after one completes.
func (o *Orchestrator) StartNextSet(ctx context.Context) error {
	return o.send(ctx, command{kind: cmdNextSet})
}

// SetSide changes the analyzed body side.
func (o *Orchestrator) SetSide(ctx context.Context, side models.Side) error {
	return o.send(ctx, command{kind: cmdSide, side: side})
}

func (o *Orchestrator) send(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	select {
	case o.cmds <- c:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the session until ctx is cancelled, then tears it down: the
// camera is released and pending analysis is abandoned. Saves already
// started keep running; use Wait to drain them.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator already running")
	}
	defer close(o.done)
	o.runCtx = ctx
	o.saveCtx = context.WithoutCancel(ctx)
	if o.cues != nil {
		o.player.Add(1)
		go o.playCues(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return nil
		case c := <-o.cmds:
			err := o.handle(c)
			o.publish()
			c.reply <- err
		case r := <-o.results:
			o.handleResult(r)
			o.publish()
		case <-tickC(o.sampleT):
			if o.sample() {
				o.publish()
			}
		case now := <-tickC(o.watchT):
			if tr, fired := o.machine.CheckPause(now); fired {
				o.logger.Info("inactivity detected, stopping with auto-save", "reps", o.machine.Reps())
				o.effects(tr)
				o.publish()
			}
		}
	}
}

// tickC returns the ticker's channel, or nil (never ready) for no ticker.
func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (o *Orchestrator) handle(c command) error {
	now := time.Now()
	var (
		tr  session.Transition
		err error
	)
	switch c.kind {
	case cmdStart:
		tr, err = o.machine.Start(now)
	case cmdNextSet:
		tr, err = o.machine.StartNextSet(now)
	case cmdStop:
		tr = o.machine.Stop(c.save)
	case cmdSide:
		tr = o.machine.SetSide(c.side, now)
		o.logger.Info("analysis side selected", "side", c.side, "restart", tr.Capture == session.CaptureRestart)
	}
	if err != nil {
		return err
	}
	return o.effects(tr)
}

// effects carries out a transition. Only camera failures are returned.
func (o *Orchestrator) effects(tr session.Transition) error {
	if tr.Changed() {
		o.logger.Info("session phase changed", "from", tr.From, "to", tr.To)
	}
	if o.pending != nil && o.pending.Generation != o.machine.Generation() {
		o.cancelReq()
		o.pending, o.cancelReq = nil, nil
	}

	var camErr error
	switch tr.Capture {
	case session.CaptureStart, session.CaptureRestart:
		o.stopTickers()
		if tr.Capture == session.CaptureStart {
			camErr = o.camera.Start(o.runCtx)
		} else {
			camErr = o.camera.Restart(o.runCtx)
		}
		o.capturing = camErr == nil
		if camErr != nil {
			o.machine.CaptureFailed(camErr)
			_ = o.camera.Stop()
		}
	case session.CaptureStop:
		o.stopTickers()
		if err := o.camera.Stop(); err != nil {
			o.logger.Warn("stopping camera", "error", err)
		}
		o.capturing = false
	}
	o.syncTickers()

	if tr.Save != nil {
		o.save(*tr.Save)
	}
	if tr.Complete != nil && !o.completed {
		o.completed = true
		o.logger.Info("exercise completed", "sets", tr.Complete.SetsCompleted, "accuracy", tr.Complete.Accuracy)
		if o.opts.OnComplete != nil {
			go o.opts.OnComplete(*tr.Complete)
		}
	}
	return camErr
}

// syncTickers runs both tickers exactly while the session is Active.
func (o *Orchestrator) syncTickers() {
	if o.machine.Phase() != session.PhaseActive {
		o.stopTickers()
		return
	}
	if o.sampleT == nil {
		o.sampleT = time.NewTicker(o.opts.SampleInterval)
		o.watchT = time.NewTicker(o.opts.WatchdogInterval)
	}
}

func (o *Orchestrator) stopTickers() {
	if o.sampleT != nil {
		o.sampleT.Stop()
		o.watchT.Stop()
		o.sampleT, o.watchT = nil, nil
	}
}

// sample issues one analysis request unless one is already pending. It
// reports whether a request went out.
func (o *Orchestrator) sample() bool {
	if o.pending != nil {
		o.logger.Debug("analysis in flight, skipping sample")
		return false
	}
	img, err := o.camera.Snapshot()
	if err != nil {
		o.logger.Debug("no frame to sample", "error", err)
		return false
	}
	frame, err := EncodeFrame(img, o.opts.JPEGQuality)
	if err != nil {
		o.logger.Warn("encoding frame", "error", err)
		return false
	}

	o.seq++
	stamp := session.Stamp{Generation: o.machine.Generation(), Seq: o.seq}
	req := models.AnalyzeFrameRequest{
		Frame:         frame,
		ExerciseName:  o.machine.Exercise().AnalysisKey(),
		PreviousState: o.machine.RequestState(),
	}
	ctx, cancel := context.WithCancel(o.runCtx)
	o.pending, o.cancelReq = &stamp, cancel

	go func() {
		defer cancel()
		resp, err := o.analyzer.AnalyzeFrame(ctx, req)
		select {
		case o.results <- result{stamp: stamp, resp: resp, err: err}:
		case <-o.done:
		}
	}()
	return true
}

func (o *Orchestrator) handleResult(r result) {
	if o.pending != nil && *o.pending == r.stamp {
		o.pending, o.cancelReq = nil, nil
	}

	if r.err != nil {
		if err := o.machine.AnalysisFailed(r.stamp, r.err); err != nil {
			o.logger.Debug("discarding stale analysis failure", "seq", r.stamp.Seq, "error", r.err)
			return
		}
		o.logger.Warn("frame analysis failed", "seq", r.stamp.Seq, "error", r.err)
		return
	}

	tr, err := o.machine.Apply(r.stamp, r.resp, time.Now())
	switch {
	case errors.Is(err, session.ErrStaleResult):
		o.logger.Debug("discarding stale analysis result", "generation", r.stamp.Generation, "seq", r.stamp.Seq)
		return
	case err != nil:
		o.logger.Warn("rejecting analysis result", "seq", r.stamp.Seq, "error", err)
		return
	}

	if o.cues != nil && len(r.resp.Feedback) > 0 {
		select {
		case o.cues <- r.resp.Feedback:
		default:
			o.logger.Debug("cue player busy, dropping feedback audio", "seq", r.stamp.Seq)
		}
	}
	o.effects(tr)
}

// playCues plays queued feedback one batch at a time until ctx ends, which
// also cuts off the cue playing at that moment.
func (o *Orchestrator) playCues(ctx context.Context) {
	defer o.player.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case items := <-o.cues:
			o.opts.Cues.Play(ctx, items)
		}
	}
}

func (o *Orchestrator) save(req session.SaveRequest) {
	rec := persist.Record{
		EventID:   req.EventID,
		SessionID: req.SessionID,
		Exercise:  req.Exercise,
		SetNumber: req.SetNumber,
		Reps:      req.Reps,
		Accuracy:  req.Accuracy,
		AutoSave:  req.AutoSave,
	}
	o.saves.Add(1)
	go func() {
		defer o.saves.Done()
		ctx, cancel := context.WithTimeout(o.saveCtx, o.opts.SaveTimeout)
		defer cancel()
		outcome := o.saver.Save(ctx, rec)
		o.logger.Debug("save finished", "event_id", rec.EventID, "outcome", outcome)
	}()
}

func (o *Orchestrator) teardown() {
	if o.cancelReq != nil {
		o.cancelReq()
		o.pending, o.cancelReq = nil, nil
	}
	o.effects(o.machine.Teardown())
	o.publish()
	o.logger.Info("session torn down")
}

func (o *Orchestrator) publish() {
	view := o.machine.View()
	if o.opts.Canvas != nil && (!o.rendered || view.Drawing != o.drawn) {
		o.lastRender = o.opts.Renderer.Render(o.opts.Canvas, view.Drawing)
		o.rendered, o.drawn = true, view.Drawing
		if c, ok := o.opts.Canvas.(copier); ok {
			o.lastImage = c.Copy()
		}
	}
	o.snap.Store(&Snapshot{
		View:         view,
		Capturing:    o.capturing,
		InFlight:     o.pending != nil,
		Overlay:      o.lastRender,
		UpdatedAt:    time.Now(),
		OverlayImage: o.lastImage,
	})
	select {
	case o.updates <- struct{}{}:
	default:
	}
}
