package main

import (
	"context"
	"errors"
	"testing"

	"github.com/claude/physiotrack/internal/models"
)

type fakePlans struct {
	plan  *models.ExercisePlan
	err   error
	calls int
}

func (f *fakePlans) GetPlan(ctx context.Context, ailment string) (*models.ExercisePlan, error) {
	f.calls++
	return f.plan, f.err
}

func kneePlan() *models.ExercisePlan {
	return &models.ExercisePlan{
		Ailment: "knee",
		Exercises: []models.Exercise{
			{Name: "Squat", TargetReps: 10, Sets: 3},
			{Name: "Lunge", TargetReps: 8, Sets: 2},
		},
	}
}

// TestResolveConfiguredExercise verifies the configured exercise is used without fetching a plan.
func TestResolveConfiguredExercise(t *testing.T) {
	plans := &fakePlans{plan: kneePlan()}
	configured := models.Exercise{Name: "Bicep Curl", TargetReps: 12, Sets: 2}

	ex, err := resolveExercise(context.Background(), configured, plans, "bicep curl", "knee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Name != "Bicep Curl" || plans.calls != 0 {
		t.Errorf("exercise = %+v, plan calls = %d", ex, plans.calls)
	}
}

// TestResolveFromPlan verifies plan lookup by name and the first-exercise default.
func TestResolveFromPlan(t *testing.T) {
	plans := &fakePlans{plan: kneePlan()}

	ex, err := resolveExercise(context.Background(), models.Exercise{}, plans, "lunge", "knee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Name != "Lunge" || ex.TargetReps != 8 {
		t.Errorf("exercise = %+v", ex)
	}

	ex, err = resolveExercise(context.Background(), models.Exercise{}, plans, "", "knee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Name != "Squat" {
		t.Errorf("exercise = %+v, want first in plan", ex)
	}
}

// TestResolveErrors verifies missing exercises and plan failures are reported.
func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		plans   *fakePlans
		ex      string
		ailment string
	}{
		{"nothing configured", &fakePlans{}, "", ""},
		{"unknown name without ailment", &fakePlans{}, "Plank", ""},
		{"not in plan", &fakePlans{plan: kneePlan()}, "Plank", "knee"},
		{"empty plan", &fakePlans{plan: &models.ExercisePlan{Ailment: "knee"}}, "", "knee"},
		{"plan fetch fails", &fakePlans{err: errors.New("backend down")}, "", "knee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveExercise(context.Background(), models.Exercise{}, tt.plans, tt.ex, tt.ailment); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
