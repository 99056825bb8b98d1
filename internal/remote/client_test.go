package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/physiotrack/internal/models"
)

// newTestServer routes requests to handlers keyed by path and fails on anything else.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestAnalyzeFrame verifies the request body shape, including a null
// analysis_side, and that the response state is decoded.
func TestAnalyzeFrame(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/analyze_frame": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["exercise_name"] != "squat" {
				t.Errorf("exercise_name = %v", body["exercise_name"])
			}
			prev, _ := body["previous_state"].(map[string]any)
			if v, ok := prev["analysis_side"]; !ok || v != nil {
				t.Errorf("analysis_side = %v (present=%v), want null", v, ok)
			}
			st := models.NewSessionState(models.SideLeft)
			st.Reps = 2
			writeTestJSON(t, w, models.AnalyzeFrameResponse{Reps: 2, AccuracyScore: 88, State: &st})
		},
	})

	c := NewClient(ts.URL+"/", time.Second)
	resp, err := c.AnalyzeFrame(context.Background(), models.AnalyzeFrameRequest{
		Frame:         "data:image/jpeg;base64,AAAA",
		ExerciseName:  "squat",
		PreviousState: models.NewSessionState(models.SideAuto),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reps != 2 || resp.State.ResolvedSide() != models.SideLeft {
		t.Errorf("resp = %+v", resp)
	}
}

// TestAnalyzeFrameMalformed verifies a response without state is rejected.
func TestAnalyzeFrameMalformed(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/analyze_frame": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"reps": 3, "accuracy_score": 50}`))
		},
	})
	_, err := NewClient(ts.URL, time.Second).AnalyzeFrame(context.Background(), models.AnalyzeFrameRequest{ExerciseName: "squat"})
	if err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("err = %v, want malformed response error", err)
	}
}

// TestAnalyzeFrameStatusError verifies non-200 answers surface as *StatusError with the body.
func TestAnalyzeFrameStatusError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/analyze_frame": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		},
	})
	_, err := NewClient(ts.URL, time.Second).AnalyzeFrame(context.Background(), models.AnalyzeFrameRequest{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Status != http.StatusInternalServerError || se.Body != "model not loaded" {
		t.Errorf("status error = %+v", se)
	}
}

// TestAnalyzeFrameCancelled verifies a cancelled context aborts the call.
func TestAnalyzeFrameCancelled(t *testing.T) {
	release := make(chan struct{})
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/analyze_frame": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(ts.URL, 5*time.Second).AnalyzeFrame(ctx, models.AnalyzeFrameRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestSaveSession verifies the persisted fields.
func TestSaveSession(t *testing.T) {
	var got models.SaveSessionRequest
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/save_session": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			writeTestJSON(t, w, map[string]string{"message": "Session saved successfully"})
		},
	})
	err := NewClient(ts.URL, time.Second).SaveSession(context.Background(), models.SaveSessionRequest{
		UserID: "u1", ExerciseName: "Squat", RepsCompleted: 10, AccuracyScore: 91.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.RepsCompleted != 10 || got.AccuracyScore != 91.5 {
		t.Errorf("saved = %+v", got)
	}
}

// TestGetPlan verifies the plan is decoded and the ailment filled in when omitted.
func TestGetPlan(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/get_plan": func(w http.ResponseWriter, r *http.Request) {
			var req models.PlanRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Ailment != "knee pain" {
				t.Errorf("ailment = %q", req.Ailment)
			}
			writeTestJSON(t, w, map[string]any{
				"exercises": []map[string]any{
					{"name": "Squat", "target_reps": 10, "sets": 2, "rest_seconds": 30},
				},
				"duration_weeks": 4,
			})
		},
	})
	plan, err := NewClient(ts.URL, time.Second).GetPlan(context.Background(), "knee pain")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Ailment != "knee pain" || plan.DurationWeeks != 4 {
		t.Errorf("plan = %+v", plan)
	}
	if ex, ok := plan.Find("squat"); !ok || ex.TargetReps != 10 {
		t.Errorf("Find(squat) = %+v, %v", ex, ok)
	}
}
