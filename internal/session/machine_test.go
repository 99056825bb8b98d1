package session

import (
	"errors"
	"testing"
	"time"

	"github.com/claude/physiotrack/internal/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func squat() models.Exercise {
	return models.Exercise{Name: "Squat", TargetReps: 10, Sets: 2}
}

func newMachine(t *testing.T, ex models.Exercise) *Machine {
	t.Helper()
	m, err := New(ex, Options{FeedbackLimit: 20, PauseThreshold: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// response builds a valid analysis response reporting reps in the given stage.
func response(reps int, stage models.Stage) *models.AnalyzeFrameResponse {
	st := models.NewSessionState(models.SideAuto)
	st.Reps = reps
	st.Stage = stage
	st.FrameCount = reps * 10
	return &models.AnalyzeFrameResponse{
		Reps:          reps,
		AccuracyScore: 90,
		State:         &st,
		DrawingLandmarks: []models.Landmark{
			{X: 0.5, Y: 0.5, Visibility: 0.9},
		},
	}
}

// drive applies responses with increasing reps up to n, one second apart.
func drive(t *testing.T, m *Machine, seq *uint64, from, to int, at time.Time) (Transition, time.Time) {
	t.Helper()
	var tr Transition
	for r := from; r <= to; r++ {
		*seq++
		at = at.Add(time.Second)
		var err error
		tr, err = m.Apply(Stamp{Generation: m.Generation(), Seq: *seq}, response(r, models.StageDown), at)
		if err != nil {
			t.Fatalf("Apply reps=%d: %v", r, err)
		}
	}
	return tr, at
}

// TestNewRejectsInvalidExercise verifies that a zero target or set count is refused.
func TestNewRejectsInvalidExercise(t *testing.T) {
	if _, err := New(models.Exercise{Name: "Squat", TargetReps: 0, Sets: 1}, Options{}); err == nil {
		t.Fatal("expected error for zero target reps")
	}
}

// TestFullSessionTwoSets walks the 10 reps x 2 sets scenario end to end.
func TestFullSessionTwoSets(t *testing.T) {
	m := newMachine(t, squat())

	tr, err := m.Start(t0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tr.To != PhaseActive || tr.Capture != CaptureStart {
		t.Fatalf("start transition = %+v", tr)
	}

	var seq uint64
	tr, at := drive(t, m, &seq, 1, 10, t0)
	if tr.To != PhaseAwaitingNextSet {
		t.Fatalf("phase after 10 reps = %s, want awaiting_next_set", tr.To)
	}
	if tr.Save == nil || tr.Save.Reps != 10 || tr.Save.SetNumber != 1 || tr.Save.AutoSave {
		t.Fatalf("set 1 save = %+v", tr.Save)
	}
	if tr.Capture != CaptureKeep {
		t.Errorf("camera should stay open while awaiting next set, got %s", tr.Capture)
	}
	if m.SetsCompleted() != 1 {
		t.Errorf("sets completed = %d, want 1", m.SetsCompleted())
	}

	tr, err = m.StartNextSet(at)
	if err != nil {
		t.Fatalf("StartNextSet: %v", err)
	}
	if tr.Capture != CaptureRestart || m.Reps() != 0 {
		t.Fatalf("next set: capture=%s reps=%d", tr.Capture, m.Reps())
	}
	if len(m.View().Feedback) != 0 {
		t.Errorf("feedback not cleared on next set")
	}

	tr, _ = drive(t, m, &seq, 1, 10, at)
	if tr.To != PhaseCompleted {
		t.Fatalf("phase after set 2 = %s, want completed", tr.To)
	}
	if tr.Save == nil || tr.Save.SetNumber != 2 {
		t.Fatalf("set 2 save = %+v", tr.Save)
	}
	if tr.Complete == nil || tr.Complete.SetsCompleted != 2 {
		t.Fatalf("completion summary = %+v", tr.Complete)
	}
	if tr.Capture != CaptureStop {
		t.Errorf("completed session should release camera, got %s", tr.Capture)
	}
	if err := m.CanStart(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CanStart after completion = %v, want ErrInvalidTransition", err)
	}
}

// TestStartOnlyFromIdle verifies Start is refused while a set runs.
func TestStartOnlyFromIdle(t *testing.T) {
	m := newMachine(t, squat())
	if _, err := m.Start(t0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.StartNextSet(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartNextSet while active = %v, want ErrInvalidTransition", err)
	}
}

// TestStaleResultsDiscarded verifies results from an older generation or an
// out-of-order sequence never touch the live state.
func TestStaleResultsDiscarded(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	old := m.Generation()

	if _, err := m.Apply(Stamp{Generation: old, Seq: 2}, response(3, models.StageUp), t0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(Stamp{Generation: old, Seq: 1}, response(1, models.StageDown), t0); !errors.Is(err, ErrStaleResult) {
		t.Errorf("out-of-order result = %v, want ErrStaleResult", err)
	}

	m.Stop(false)
	m.Start(t0)
	if _, err := m.Apply(Stamp{Generation: old, Seq: 3}, response(5, models.StageUp), t0); !errors.Is(err, ErrStaleResult) {
		t.Errorf("old generation result = %v, want ErrStaleResult", err)
	}
	if m.Reps() != 0 {
		t.Errorf("reps = %d after stale result, want 0", m.Reps())
	}
}

// TestResultsIgnoredOutsideActive verifies no result is applied while awaiting the next set.
func TestResultsIgnoredOutsideActive(t *testing.T) {
	m := newMachine(t, models.Exercise{Name: "Squat", TargetReps: 1, Sets: 2})
	m.Start(t0)
	gen := m.Generation()
	if _, err := m.Apply(Stamp{Generation: gen, Seq: 1}, response(1, models.StageDown), t0); err != nil {
		t.Fatal(err)
	}
	if m.Phase() != PhaseAwaitingNextSet {
		t.Fatalf("phase = %s", m.Phase())
	}
	if _, err := m.Apply(Stamp{Generation: gen, Seq: 2}, response(2, models.StageDown), t0); !errors.Is(err, ErrStaleResult) {
		t.Errorf("result while awaiting = %v, want ErrStaleResult", err)
	}
}

// TestRepsRegressionRejected verifies a response lowering reps mid-set is discarded.
func TestRepsRegressionRejected(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	var seq uint64
	drive(t, m, &seq, 1, 4, t0)

	_, err := m.Apply(Stamp{Generation: m.Generation(), Seq: seq + 1}, response(2, models.StageDown), t0)
	if !errors.Is(err, ErrRepsRegressed) {
		t.Fatalf("regressed result = %v, want ErrRepsRegressed", err)
	}
	if m.Reps() != 4 {
		t.Errorf("reps = %d, want 4", m.Reps())
	}
}

// TestWatchdogAutoSavesOnce verifies the pause watchdog stops with save exactly once.
func TestWatchdogAutoSavesOnce(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	var seq uint64
	_, at := drive(t, m, &seq, 1, 3, t0)

	if _, fired := m.CheckPause(at.Add(5 * time.Second)); fired {
		t.Fatal("watchdog fired at exactly the threshold")
	}
	tr, fired := m.CheckPause(at.Add(6 * time.Second))
	if !fired {
		t.Fatal("watchdog did not fire after 6s of inactivity")
	}
	if tr.To != PhaseIdle || tr.Capture != CaptureStop {
		t.Errorf("pause transition = %+v", tr)
	}
	if tr.Save == nil || !tr.Save.AutoSave || tr.Save.Reps != 3 {
		t.Fatalf("pause save = %+v", tr.Save)
	}
	if _, fired := m.CheckPause(at.Add(10 * time.Second)); fired {
		t.Error("watchdog fired a second time")
	}
	if m.View().Message.Text == "" {
		t.Error("expected a pause message")
	}
}

// TestWatchdogIgnoresZeroReps verifies an idle operator with no reps is never auto-saved.
func TestWatchdogIgnoresZeroReps(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	if _, fired := m.CheckPause(t0.Add(time.Minute)); fired {
		t.Error("watchdog fired with zero reps")
	}
	if m.Phase() != PhaseActive {
		t.Errorf("phase = %s, want active", m.Phase())
	}
}

// TestWatchdogActivityOnlyOnChange verifies repeated identical results do not count as activity.
func TestWatchdogActivityOnlyOnChange(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	gen := m.Generation()
	m.Apply(Stamp{Generation: gen, Seq: 1}, response(1, models.StageUp), t0.Add(time.Second))
	for i := uint64(2); i < 10; i++ {
		m.Apply(Stamp{Generation: gen, Seq: i}, response(1, models.StageUp), t0.Add(time.Duration(i)*time.Second))
	}
	if _, fired := m.CheckPause(t0.Add(7 * time.Second)); !fired {
		t.Error("unchanged results should not have kept the session alive")
	}
}

// TestStopSaveRules verifies manual stop saves only an active set with reps.
func TestStopSaveRules(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	if tr := m.Stop(true); tr.Save != nil {
		t.Errorf("stop with zero reps requested save: %+v", tr.Save)
	}

	m.Start(t0)
	var seq uint64
	drive(t, m, &seq, 1, 4, t0)
	tr := m.Stop(true)
	if tr.Save == nil || tr.Save.Reps != 4 || tr.Save.SetNumber != 1 {
		t.Fatalf("stop save = %+v", tr.Save)
	}
	if tr.To != PhaseIdle {
		t.Errorf("phase after stop = %s", tr.To)
	}

	m.Start(t0)
	seq = 0
	drive(t, m, &seq, 1, 4, t0)
	if tr := m.Stop(false); tr.Save != nil {
		t.Errorf("stop without save produced %+v", tr.Save)
	}
}

// TestStopFromAwaitingDoesNotResave verifies a set already persisted is not saved again.
func TestStopFromAwaitingDoesNotResave(t *testing.T) {
	m := newMachine(t, models.Exercise{Name: "Squat", TargetReps: 2, Sets: 3})
	m.Start(t0)
	var seq uint64
	drive(t, m, &seq, 1, 2, t0)
	tr := m.Stop(true)
	if tr.Save != nil {
		t.Errorf("stop from awaiting requested save: %+v", tr.Save)
	}
	if tr.To != PhaseIdle || tr.Capture != CaptureStop {
		t.Errorf("transition = %+v", tr)
	}
}

// TestSideChangeRestartsFresh verifies switching side mid-set resets without saving.
func TestSideChangeRestartsFresh(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	var seq uint64
	drive(t, m, &seq, 1, 3, t0)
	gen := m.Generation()

	tr := m.SetSide(models.SideLeft, t0.Add(time.Minute))
	if tr.Capture != CaptureRestart || tr.Save != nil {
		t.Fatalf("side change transition = %+v", tr)
	}
	if m.Reps() != 0 || m.Generation() == gen {
		t.Errorf("reps=%d generation=%d after side change", m.Reps(), m.Generation())
	}
	st := m.RequestState()
	if st.AnalysisSide == nil || *st.AnalysisSide != "left" {
		t.Errorf("request side = %v, want left", st.AnalysisSide)
	}
	if _, err := m.Apply(Stamp{Generation: gen, Seq: seq + 1}, response(4, models.StageUp), t0); !errors.Is(err, ErrStaleResult) {
		t.Errorf("pre-change result = %v, want ErrStaleResult", err)
	}
}

// TestReselectingSideKeepsSet verifies choosing the side already selected
// neither restarts the set nor drops its reps.
func TestReselectingSideKeepsSet(t *testing.T) {
	m, _ := New(squat(), Options{Side: models.SideLeft})
	m.Start(t0)
	var seq uint64
	drive(t, m, &seq, 1, 7, t0)
	gen := m.Generation()

	tr := m.SetSide(models.SideLeft, t0.Add(time.Minute))
	if tr.Capture != CaptureKeep || tr.Save != nil || tr.Changed() {
		t.Errorf("transition = %+v, want no-op", tr)
	}
	if m.Reps() != 7 || m.Generation() != gen {
		t.Errorf("reps=%d generation=%d, want 7 and %d", m.Reps(), m.Generation(), gen)
	}
	if _, err := m.Apply(Stamp{Generation: gen, Seq: seq + 1}, response(8, models.StageUp), t0.Add(time.Minute)); err != nil {
		t.Errorf("result issued before reselect: %v", err)
	}
}

// TestReselectingAutoRedetects verifies choosing auto again clears the
// resolved side without restarting the set.
func TestReselectingAutoRedetects(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	resp := response(2, models.StageUp)
	*resp.State = resp.State.WithSide(models.SideRight)
	if _, err := m.Apply(Stamp{Generation: m.Generation(), Seq: 1}, resp, t0); err != nil {
		t.Fatal(err)
	}
	gen := m.Generation()

	tr := m.SetSide(models.SideAuto, t0)
	if tr.Capture != CaptureKeep {
		t.Errorf("capture = %v, want none", tr.Capture)
	}
	if m.Reps() != 2 || m.Generation() != gen {
		t.Errorf("reps=%d generation=%d, want 2 and %d", m.Reps(), m.Generation(), gen)
	}
	if m.View().ResolvedSide != "" || m.RequestState().AnalysisSide != nil {
		t.Error("resolved side should be cleared")
	}
}

// TestAutoSideAdoptsServerChoice verifies a server-resolved side is kept while selection is auto.
func TestAutoSideAdoptsServerChoice(t *testing.T) {
	m := newMachine(t, squat())
	if m.RequestState().AnalysisSide != nil {
		t.Fatal("auto selection should send a null side")
	}
	m.Start(t0)
	resp := response(1, models.StageUp)
	*resp.State = resp.State.WithSide(models.SideRight)
	if _, err := m.Apply(Stamp{Generation: m.Generation(), Seq: 1}, resp, t0); err != nil {
		t.Fatal(err)
	}
	if got := m.View().ResolvedSide; got != models.SideRight {
		t.Errorf("resolved side = %q, want right", got)
	}
	if st := m.RequestState(); st.AnalysisSide == nil || *st.AnalysisSide != "right" {
		t.Errorf("request side = %v, want right", st.AnalysisSide)
	}

	m.SetSide(models.SideAuto, t0)
	if m.RequestState().AnalysisSide != nil {
		t.Error("switching back to auto should clear the resolved side")
	}
}

// TestManualSideOverridesServer verifies a concrete selection is pinned even if the server disagrees.
func TestManualSideOverridesServer(t *testing.T) {
	m, _ := New(squat(), Options{Side: models.SideLeft})
	m.Start(t0)
	resp := response(1, models.StageUp)
	*resp.State = resp.State.WithSide(models.SideRight)
	m.Apply(Stamp{Generation: m.Generation(), Seq: 1}, resp, t0)
	if st := m.RequestState(); *st.AnalysisSide != "left" {
		t.Errorf("request side = %s, want left", *st.AnalysisSide)
	}
}

// TestAnalysisFailureClearsOverlay verifies a failed call clears drawing data and sets a transient message.
func TestAnalysisFailureClearsOverlay(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	m.Apply(Stamp{Generation: m.Generation(), Seq: 1}, response(1, models.StageUp), t0)
	if m.View().Drawing == nil {
		t.Fatal("expected drawing data after a successful result")
	}
	if err := m.AnalysisFailed(Stamp{Generation: m.Generation(), Seq: 2}, errors.New("timeout")); err != nil {
		t.Fatal(err)
	}
	v := m.View()
	if v.Drawing != nil {
		t.Error("drawing data not cleared")
	}
	if v.Message.Text == "" || v.Message.Persistent {
		t.Errorf("message = %+v, want transient error", v.Message)
	}
	if v.Phase != PhaseActive {
		t.Errorf("phase = %s, polling should continue", v.Phase)
	}

	m.Apply(Stamp{Generation: m.Generation(), Seq: 3}, response(2, models.StageDown), t0)
	if m.View().Message.Text != "" {
		t.Error("transient message should clear on the next good result")
	}
}

// TestCaptureFailedReturnsToIdle verifies a device error leaves a persistent message and Idle phase.
func TestCaptureFailedReturnsToIdle(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	tr := m.CaptureFailed(errors.New("camera permission denied"))
	if tr.To != PhaseIdle {
		t.Errorf("phase = %s, want idle", tr.To)
	}
	if msg := m.View().Message; !msg.Persistent {
		t.Errorf("message = %+v, want persistent", msg)
	}
	if _, err := m.Start(t0); err != nil {
		t.Fatalf("restart after device error: %v", err)
	}
	if m.View().Message.Text != "" {
		t.Error("successful start should clear the device error")
	}
}

// TestTeardownClosesMachine verifies teardown is terminal.
func TestTeardownClosesMachine(t *testing.T) {
	m := newMachine(t, squat())
	m.Start(t0)
	tr := m.Teardown()
	if tr.To != PhaseIdle || tr.Capture != CaptureStop || tr.Save != nil {
		t.Errorf("teardown = %+v", tr)
	}
	if _, err := m.Start(t0); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after teardown = %v, want ErrClosed", err)
	}
}

// TestFeedbackBounded verifies the feedback log never exceeds its limit.
func TestFeedbackBounded(t *testing.T) {
	m, _ := New(models.Exercise{Name: "Squat", TargetReps: 100, Sets: 1}, Options{FeedbackLimit: 3})
	m.Start(t0)
	for i := uint64(1); i <= 10; i++ {
		resp := response(int(i), models.StageUp)
		resp.Feedback = []models.FeedbackItem{{Type: models.FeedbackEncouragement, Message: "Good"}}
		m.Apply(Stamp{Generation: m.Generation(), Seq: i}, resp, t0)
	}
	if n := len(m.View().Feedback); n != 3 {
		t.Errorf("feedback entries = %d, want 3", n)
	}
}

// TestPhaseText verifies phase names used in JSON.
func TestPhaseText(t *testing.T) {
	b, _ := PhaseAwaitingNextSet.MarshalText()
	if string(b) != "awaiting_next_set" {
		t.Errorf("got %q", b)
	}
}
