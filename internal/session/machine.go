// Package session holds the authoritative state of one live exercise session.
//
// Machine is not safe for concurrent use. The live orchestrator owns it from a
// single goroutine; every method returns the effects (camera, persistence,
// completion) the owner must carry out, and the machine itself performs no I/O.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/claude/physiotrack/internal/models"
	"github.com/google/uuid"
)

// Phase is the session's position in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseAwaitingNextSet
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseAwaitingNextSet:
		return "awaiting_next_set"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseIdle, PhaseActive, PhaseAwaitingNextSet, PhaseCompleted} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

var (
	// ErrStaleResult marks an analysis result from an older generation or sequence.
	ErrStaleResult = errors.New("stale analysis result")
	// ErrRepsRegressed marks a result whose rep count is lower than the live one.
	ErrRepsRegressed = errors.New("rep count went backwards")
	// ErrInvalidTransition is returned when an action does not apply to the current phase.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("session closed")
)

// Capture is the camera action a transition requires.
type Capture int

const (
	CaptureKeep Capture = iota
	CaptureStart
	CaptureStop
	CaptureRestart
)

func (c Capture) String() string {
	switch c {
	case CaptureStart:
		return "start"
	case CaptureStop:
		return "stop"
	case CaptureRestart:
		return "restart"
	default:
		return "keep"
	}
}

// Stamp identifies the analysis request a result belongs to.
type Stamp struct {
	Generation uint64
	Seq        uint64
}

// SaveRequest asks the owner to persist a set result. EventID is unique per
// completion event.
type SaveRequest struct {
	EventID   uuid.UUID
	SessionID uuid.UUID
	Exercise  string
	SetNumber int
	Reps      int
	Accuracy  float64
	AutoSave  bool
}

// Summary is handed to the completion collaborator.
type Summary struct {
	SessionID     uuid.UUID `json:"session_id"`
	Exercise      string    `json:"exercise"`
	SetsCompleted int       `json:"sets_completed"`
	Reps          int       `json:"reps"`
	Accuracy      float64   `json:"accuracy"`
}

// Transition describes what changed and which effects the owner must run.
type Transition struct {
	From, To Phase
	Capture  Capture
	Save     *SaveRequest
	Complete *Summary
}

// Changed reports whether the phase changed.
func (t Transition) Changed() bool { return t.From != t.To }

// Options configures a Machine.
type Options struct {
	Side           models.Side
	FeedbackLimit  int
	PauseThreshold time.Duration
}

// Message is the user-facing error line. Persistent messages (device errors)
// stay until the next successful start; transient ones are replaced by the
// next analysis result.
type Message struct {
	Text       string `json:"text"`
	Persistent bool   `json:"persistent"`
}

// Machine is the session state machine.
type Machine struct {
	id       uuid.UUID
	exercise models.Exercise

	phase         Phase
	state         models.SessionState
	setsCompleted int
	accuracy      float64
	minAngle      *float64
	maxAngle      *float64

	selection models.Side
	resolved  models.Side

	feedback *FeedbackLog
	drawing  *models.DrawingData
	watchdog Watchdog
	message  Message

	generation uint64
	lastSeq    uint64
	closed     bool
}

// New creates an idle session for exercise.
func New(exercise models.Exercise, opts Options) (*Machine, error) {
	if err := exercise.Validate(); err != nil {
		return nil, err
	}
	side := opts.Side
	if side == "" {
		side = models.SideAuto
	}
	m := &Machine{
		id:        uuid.New(),
		exercise:  exercise,
		phase:     PhaseIdle,
		selection: side,
		feedback:  NewFeedbackLog(opts.FeedbackLimit),
		watchdog:  NewWatchdog(opts.PauseThreshold),
	}
	m.state = models.NewSessionState(m.requestSide())
	return m, nil
}

// ID returns the session identifier.
func (m *Machine) ID() uuid.UUID { return m.id }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Generation identifies the current capture run. It changes on every start,
// stop, set change and side change so results from earlier runs are rejected.
func (m *Machine) Generation() uint64 { return m.generation }

// Reps returns the live rep count.
func (m *Machine) Reps() int { return m.state.Reps }

// SetsCompleted returns the number of finished sets.
func (m *Machine) SetsCompleted() int { return m.setsCompleted }

// Exercise returns the exercise this session runs.
func (m *Machine) Exercise() models.Exercise { return m.exercise }

// CanStart reports whether Start is allowed.
func (m *Machine) CanStart() error {
	switch {
	case m.closed:
		return ErrClosed
	case m.phase == PhaseIdle:
		return nil
	case m.phase == PhaseCompleted:
		return fmt.Errorf("%w: session already completed", ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, m.phase)
	}
}

// Start begins a set from Idle with a fresh state.
func (m *Machine) Start(now time.Time) (Transition, error) {
	if err := m.CanStart(); err != nil {
		return Transition{}, err
	}
	from := m.phase
	m.beginSet(now)
	m.message = Message{}
	return Transition{From: from, To: m.phase, Capture: CaptureStart}, nil
}

// StartNextSet leaves AwaitingNextSet and restarts capture for the next set.
func (m *Machine) StartNextSet(now time.Time) (Transition, error) {
	if m.closed {
		return Transition{}, ErrClosed
	}
	if m.phase != PhaseAwaitingNextSet {
		return Transition{}, fmt.Errorf("%w: no set pending (phase %s)", ErrInvalidTransition, m.phase)
	}
	from := m.phase
	m.beginSet(now)
	return Transition{From: from, To: m.phase, Capture: CaptureRestart}, nil
}

// beginSet resets the per-set state and enters Active.
func (m *Machine) beginSet(now time.Time) {
	m.state = models.NewSessionState(m.requestSide())
	m.accuracy = 0
	m.minAngle, m.maxAngle = nil, nil
	m.feedback.Clear()
	m.drawing = nil
	m.generation++
	m.lastSeq = 0
	m.watchdog.Touch(now)
	m.phase = PhaseActive
}

// CaptureFailed records a camera error. An Active session falls back to Idle.
func (m *Machine) CaptureFailed(err error) Transition {
	m.message = Message{Text: err.Error(), Persistent: true}
	from := m.phase
	if m.phase == PhaseActive || m.phase == PhaseAwaitingNextSet {
		m.phase = PhaseIdle
		m.generation++
		m.drawing = nil
	}
	return Transition{From: from, To: m.phase, Capture: CaptureStop}
}

// Accept checks whether a result stamp belongs to the live request stream.
func (m *Machine) Accept(stamp Stamp) error {
	if m.phase != PhaseActive || stamp.Generation != m.generation || stamp.Seq <= m.lastSeq {
		return ErrStaleResult
	}
	return nil
}

// Apply installs a validated analysis response. The server's state replaces
// the live one wholesale; the rep target is checked locally afterwards.
func (m *Machine) Apply(stamp Stamp, resp *models.AnalyzeFrameResponse, now time.Time) (Transition, error) {
	if err := m.Accept(stamp); err != nil {
		return Transition{}, err
	}
	if resp.State == nil {
		return Transition{}, fmt.Errorf("apply: response missing state")
	}
	m.lastSeq = stamp.Seq
	if resp.State.Reps < m.state.Reps {
		return Transition{}, fmt.Errorf("%w: %d -> %d", ErrRepsRegressed, m.state.Reps, resp.State.Reps)
	}

	next := *resp.State
	if m.selection.Concrete() {
		next = next.WithSide(m.selection)
	} else if side := next.ResolvedSide(); side != "" {
		m.resolved = side
	}
	changed := next.Reps != m.state.Reps || next.Stage != m.state.Stage

	m.state = next
	m.accuracy = resp.AccuracyScore
	m.minAngle, m.maxAngle = resp.MinAngle, resp.MaxAngle
	m.feedback.Append(resp.Feedback...)
	m.drawing = resp.Drawing()
	if !m.message.Persistent {
		m.message = Message{}
	}
	if changed {
		m.watchdog.Touch(now)
	}

	tr := Transition{From: m.phase, To: m.phase}
	if m.state.Reps < m.exercise.TargetReps {
		return tr, nil
	}

	m.setsCompleted++
	tr.Save = m.saveRequest(false)
	if m.setsCompleted >= m.exercise.Sets {
		m.phase = PhaseCompleted
		tr.Capture = CaptureStop
		tr.Complete = &Summary{
			SessionID:     m.id,
			Exercise:      m.exercise.Name,
			SetsCompleted: m.setsCompleted,
			Reps:          m.state.Reps,
			Accuracy:      m.accuracy,
		}
		m.feedback.Append(models.FeedbackItem{Type: models.FeedbackProgress, Message: "Exercise complete!"})
	} else {
		m.phase = PhaseAwaitingNextSet
		m.feedback.Append(models.FeedbackItem{
			Type:    models.FeedbackProgress,
			Message: fmt.Sprintf("Set %d of %d complete.", m.setsCompleted, m.exercise.Sets),
		})
	}
	tr.To = m.phase
	return tr, nil
}

// AnalysisFailed records a failed or malformed analysis call. The overlay is
// cleared and the session keeps polling.
func (m *Machine) AnalysisFailed(stamp Stamp, err error) error {
	if accErr := m.Accept(stamp); accErr != nil {
		return accErr
	}
	m.lastSeq = stamp.Seq
	m.drawing = nil
	if !m.message.Persistent {
		m.message = Message{Text: "Analysis unavailable: " + err.Error()}
	}
	return nil
}

// Stop ends capture. With save set, the partial set of an Active session is
// persisted. Stopping an idle session is a no-op apart from releasing capture.
func (m *Machine) Stop(save bool) Transition {
	return m.stop(save, false)
}

func (m *Machine) stop(save, auto bool) Transition {
	tr := Transition{From: m.phase, To: m.phase, Capture: CaptureStop}
	switch m.phase {
	case PhaseActive:
		if save && m.state.Reps > 0 {
			tr.Save = m.saveRequest(auto)
		}
	case PhaseAwaitingNextSet:
	default:
		return tr
	}
	m.phase = PhaseIdle
	m.generation++
	m.drawing = nil
	tr.To = m.phase
	return tr
}

// CheckPause stops the session with an auto-save when the operator has been
// inactive past the threshold mid-set.
func (m *Machine) CheckPause(now time.Time) (Transition, bool) {
	if m.phase != PhaseActive || m.state.Reps == 0 || m.setsCompleted >= m.exercise.Sets {
		return Transition{}, false
	}
	if !m.watchdog.Expired(now) {
		return Transition{}, false
	}
	tr := m.stop(true, true)
	m.message = Message{Text: "Session paused after inactivity; progress saved."}
	return tr, true
}

// SetSide changes the analyzed side. While Active the run restarts from a
// fresh state so no result calibrated for the old side can be applied.
// Selecting the current side keeps the set; for auto it only drops the
// server's resolved side so the next frame is detected again.
func (m *Machine) SetSide(side models.Side, now time.Time) Transition {
	tr := Transition{From: m.phase, To: m.phase}
	if side == m.selection {
		if !side.Concrete() {
			m.resolved = ""
			m.state = m.state.WithSide(m.requestSide())
		}
		return tr
	}
	m.selection = side
	if !side.Concrete() {
		m.resolved = ""
	}
	if m.phase != PhaseActive {
		m.state = m.state.WithSide(m.requestSide())
		return tr
	}
	m.beginSet(now)
	tr.Capture = CaptureRestart
	return tr
}

// Teardown releases the session for good. A completed session keeps its
// phase; any other returns to Idle.
func (m *Machine) Teardown() Transition {
	from := m.phase
	if m.phase != PhaseCompleted {
		m.phase = PhaseIdle
	}
	tr := Transition{From: from, To: m.phase, Capture: CaptureStop}
	m.generation++
	m.drawing = nil
	m.closed = true
	return tr
}

// RequestState is the previous_state to send with the next frame.
func (m *Machine) RequestState() models.SessionState {
	return m.state.WithSide(m.requestSide())
}

// requestSide is the side to pin in outgoing state: the user's choice, else
// whatever the server resolved, else unset.
func (m *Machine) requestSide() models.Side {
	if m.selection.Concrete() {
		return m.selection
	}
	return m.resolved
}

func (m *Machine) saveRequest(auto bool) *SaveRequest {
	return &SaveRequest{
		EventID:   uuid.New(),
		SessionID: m.id,
		Exercise:  m.exercise.Name,
		SetNumber: m.setNumber(),
		Reps:      m.state.Reps,
		Accuracy:  m.accuracy,
		AutoSave:  auto,
	}
}

// setNumber is the 1-based number of the set in progress or just finished.
func (m *Machine) setNumber() int {
	if m.phase == PhaseActive && m.state.Reps < m.exercise.TargetReps {
		return m.setsCompleted + 1
	}
	return m.setsCompleted
}

// View is a read-only copy of the session for displays.
type View struct {
	SessionID     string                `json:"session_id"`
	Exercise      models.Exercise       `json:"exercise"`
	Phase         Phase                 `json:"phase"`
	Reps          int                   `json:"reps"`
	SetsCompleted int                   `json:"sets_completed"`
	Stage         models.Stage          `json:"stage"`
	Angle         float64               `json:"angle"`
	Accuracy      float64               `json:"accuracy"`
	MinAngle      *float64              `json:"min_angle,omitempty"`
	MaxAngle      *float64              `json:"max_angle,omitempty"`
	Selection     models.Side           `json:"side_selection"`
	ResolvedSide  models.Side           `json:"resolved_side,omitempty"`
	Feedback      []models.FeedbackItem `json:"feedback"`
	Message       Message               `json:"message"`
	LastActivity  time.Time             `json:"last_activity"`
	Drawing       *models.DrawingData   `json:"-"`
}

// View copies out the current state.
func (m *Machine) View() View {
	return View{
		SessionID:     m.id.String(),
		Exercise:      m.exercise,
		Phase:         m.phase,
		Reps:          m.state.Reps,
		SetsCompleted: m.setsCompleted,
		Stage:         m.state.Stage,
		Angle:         m.state.Angle,
		Accuracy:      m.accuracy,
		MinAngle:      m.minAngle,
		MaxAngle:      m.maxAngle,
		Selection:     m.selection,
		ResolvedSide:  m.resolved,
		Feedback:      m.feedback.Items(),
		Message:       m.message,
		LastActivity:  m.watchdog.LastActivity(),
		Drawing:       m.drawing,
	}
}
