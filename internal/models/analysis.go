package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// FeedbackType classifies a feedback message.
type FeedbackType string

const (
	FeedbackCorrection    FeedbackType = "correction"
	FeedbackEncouragement FeedbackType = "encouragement"
	FeedbackWarning       FeedbackType = "warning"
	FeedbackProgress      FeedbackType = "progress"
	FeedbackInstruction   FeedbackType = "instruction"
)

// FeedbackItem is one message shown to the user.
type FeedbackItem struct {
	Type    FeedbackType `json:"type"`
	Message string       `json:"message"`
}

// Landmark is a normalized body keypoint.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Point is a normalized 2D coordinate. The analysis service encodes points
// as [x, y] pairs; objects with x/y keys are accepted as well.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnmarshalJSON decodes either [x, y] or {"x":..,"y":..}.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point: want 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	p.X, p.Y = obj.X, obj.Y
	return nil
}

// MarshalJSON encodes the point as an [x, y] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// AngleCoords holds the three joints an angle is measured across; B is the vertex.
type AngleCoords struct {
	A *Point `json:"a,omitempty"`
	B *Point `json:"b,omitempty"`
	C *Point `json:"c,omitempty"`
}

// Complete reports whether all three points are present.
func (c AngleCoords) Complete() bool {
	return c.A != nil && c.B != nil && c.C != nil
}

// AngleData is the joint angle readout drawn on the overlay.
type AngleData struct {
	Angle   float64
	A, B, C Point
}

// DrawingData is everything the overlay needs for one render tick.
type DrawingData struct {
	Landmarks []Landmark
	Angle     *AngleData
}

// AnalyzeFrameRequest is the body of POST /api/analyze_frame.
type AnalyzeFrameRequest struct {
	Frame         string       `json:"frame"`
	ExerciseName  string       `json:"exercise_name"`
	PreviousState SessionState `json:"previous_state"`
}

// AnalyzeFrameResponse is the analysis service's reply for one frame.
type AnalyzeFrameResponse struct {
	Reps             int            `json:"reps"`
	AccuracyScore    float64        `json:"accuracy_score"`
	Feedback         []FeedbackItem `json:"feedback"`
	DrawingLandmarks []Landmark     `json:"drawing_landmarks"`
	CurrentAngle     float64        `json:"current_angle"`
	AngleCoords      AngleCoords    `json:"angle_coords"`
	State            *SessionState  `json:"state"`
	MinAngle         *float64       `json:"min_angle,omitempty"`
	MaxAngle         *float64       `json:"max_angle,omitempty"`
	Side             *string        `json:"side,omitempty"`
}

// Validate rejects responses the session cannot apply.
func (r *AnalyzeFrameResponse) Validate() error {
	if r.State == nil {
		return fmt.Errorf("response missing state")
	}
	if r.Reps < 0 || r.State.Reps < 0 {
		return fmt.Errorf("negative rep count (reps=%d, state.reps=%d)", r.Reps, r.State.Reps)
	}
	if r.Reps != r.State.Reps {
		return fmt.Errorf("rep count mismatch (reps=%d, state.reps=%d)", r.Reps, r.State.Reps)
	}
	if math.IsNaN(r.AccuracyScore) || math.IsNaN(r.CurrentAngle) {
		return fmt.Errorf("non-numeric accuracy or angle")
	}
	return nil
}

// Drawing builds the overlay input for this response.
func (r *AnalyzeFrameResponse) Drawing() *DrawingData {
	d := &DrawingData{Landmarks: r.DrawingLandmarks}
	if r.AngleCoords.Complete() {
		d.Angle = &AngleData{
			Angle: r.CurrentAngle,
			A:     *r.AngleCoords.A,
			B:     *r.AngleCoords.B,
			C:     *r.AngleCoords.C,
		}
	}
	return d
}

// SaveSessionRequest is the body of POST /api/save_session.
type SaveSessionRequest struct {
	UserID        string  `json:"user_id"`
	ExerciseName  string  `json:"exercise_name"`
	RepsCompleted int     `json:"reps_completed"`
	AccuracyScore float64 `json:"accuracy_score"`
}

// PlanRequest is the body of POST /api/get_plan.
type PlanRequest struct {
	Ailment string `json:"ailment"`
}
