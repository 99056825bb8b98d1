package models

import (
	"fmt"
	"strings"
)

// Exercise describes a single exercise within a plan. Supplied by the plan
// service and never mutated by the session.
type Exercise struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	TargetReps  int    `json:"target_reps" yaml:"target_reps"`
	Sets        int    `json:"sets" yaml:"sets"`
	RestSeconds int    `json:"rest_seconds" yaml:"rest_seconds"`
}

// AnalysisKey is the lower-cased name used by the analysis service and the
// reference media lookup.
func (e Exercise) AnalysisKey() string {
	return strings.ToLower(strings.TrimSpace(e.Name))
}

// Validate checks that the exercise can drive a session.
func (e Exercise) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("exercise name is required")
	}
	if e.TargetReps <= 0 {
		return fmt.Errorf("exercise %q: target_reps must be positive", e.Name)
	}
	if e.Sets <= 0 {
		return fmt.Errorf("exercise %q: sets must be positive", e.Name)
	}
	return nil
}

// ExercisePlan is an ordered list of exercises for one ailment.
type ExercisePlan struct {
	Ailment         string     `json:"ailment"`
	Exercises       []Exercise `json:"exercises"`
	DifficultyLevel string     `json:"difficulty_level,omitempty"`
	DurationWeeks   int        `json:"duration_weeks,omitempty"`
}

// Find returns the exercise with the given name (case-insensitive).
func (p ExercisePlan) Find(name string) (Exercise, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, ex := range p.Exercises {
		if ex.AnalysisKey() == key {
			return ex, true
		}
	}
	return Exercise{}, false
}
