package models

import (
	"fmt"
	"strings"
)

// Side is the user's body-side selection for analysis.
type Side string

const (
	SideAuto  Side = "auto"
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ParseSide accepts "auto", "left" or "right" (case-insensitive). Empty means auto.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case "", SideAuto:
		return SideAuto, nil
	case SideLeft:
		return SideLeft, nil
	case SideRight:
		return SideRight, nil
	}
	return "", fmt.Errorf("invalid side %q (want auto, left or right)", s)
}

// Concrete reports whether the side names an actual body side.
func (s Side) Concrete() bool {
	return s == SideLeft || s == SideRight
}

// Stage names the phase of a repetition as tracked by the analysis service.
type Stage string

const (
	StageDown Stage = "down"
	StageUp   Stage = "up"
)

// SessionState is the server-authoritative rep-counting state echoed back to
// the analysis service on every frame. Calibration fields are opaque to the
// client but must survive the round trip.
type SessionState struct {
	Reps             int     `json:"reps"`
	Stage            Stage   `json:"stage"`
	Angle            float64 `json:"angle"`
	LastRepTime      float64 `json:"last_rep_time"`
	DynamicMaxAngle  float64 `json:"dynamic_max_angle"`
	DynamicMinAngle  float64 `json:"dynamic_min_angle"`
	FrameCount       int     `json:"frame_count"`
	PartialRepBuffer float64 `json:"partial_rep_buffer"`
	AnalysisSide     *string `json:"analysis_side"`
}

// NewSessionState returns the state a set starts from. A concrete side pins
// the analysis; auto leaves it unset so the server picks one.
func NewSessionState(side Side) SessionState {
	st := SessionState{
		Stage:           StageDown,
		DynamicMinAngle: 180,
	}
	if side.Concrete() {
		s := string(side)
		st.AnalysisSide = &s
	}
	return st
}

// ResolvedSide returns the side recorded in the state, or "" if unresolved.
func (s SessionState) ResolvedSide() Side {
	if s.AnalysisSide == nil {
		return ""
	}
	side := Side(*s.AnalysisSide)
	if !side.Concrete() {
		return ""
	}
	return side
}

// WithSide returns a copy with analysis_side forced to side, or cleared for auto.
func (s SessionState) WithSide(side Side) SessionState {
	if side.Concrete() {
		v := string(side)
		s.AnalysisSide = &v
	} else {
		s.AnalysisSide = nil
	}
	return s
}
