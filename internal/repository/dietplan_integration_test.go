//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/testutil"
)

func newDietPlan(patient, doctor *model.User, name string, at time.Time) *model.DietPlan {
	return &model.DietPlan{
		ID:               testutil.NewID(),
		PatientID:        patient.ID,
		NutritionistID:   doctor.ID,
		NutritionistName: doctor.Name,
		PlanName:         name,
		Breakfast:        "Oats",
		Status:           model.DietPlanActive,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func TestIntegrationDietPlans_ArchivedHistory(t *testing.T) {
	ctx := context.Background()
	repo, err := New(ctx, testutil.RequireEnv(t, "DATABASE_URL"))
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)
	testutil.FreshDatabase(t, repo.Pool())

	patient := testutil.NewTestUser(t, model.RolePatient)
	doctor := testutil.NewTestUser(t, model.RoleDoctor)
	for _, u := range []*model.User{patient, doctor} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	start := time.Now().UTC().Truncate(time.Microsecond)
	first := newDietPlan(patient, doctor, "First", start)
	second := newDietPlan(patient, doctor, "Second", start.Add(time.Minute))
	third := newDietPlan(patient, doctor, "Third", start.Add(2*time.Minute))
	for _, p := range []*model.DietPlan{first, second, third} {
		if err := repo.ReplaceActivePlan(ctx, p); err != nil {
			t.Fatalf("ReplaceActivePlan(%s): %v", p.PlanName, err)
		}
	}

	active, err := repo.GetActivePlan(ctx, patient.ID)
	if err != nil {
		t.Fatalf("GetActivePlan: %v", err)
	}
	if active.ID != third.ID {
		t.Errorf("active plan = %s, want Third", active.PlanName)
	}

	archived, err := repo.ListArchivedPlans(ctx, patient.ID, 10)
	if err != nil {
		t.Fatalf("ListArchivedPlans: %v", err)
	}
	if len(archived) != 2 || archived[0].ID != second.ID || archived[1].ID != first.ID {
		t.Fatalf("archived = %+v, want Second then First", archived)
	}
	for _, p := range archived {
		if p.Status != model.DietPlanArchived {
			t.Errorf("%s has status %s", p.PlanName, p.Status)
		}
	}

	// Reusing an id violates a unique index; it surfaces as a conflict.
	dup := newDietPlan(patient, doctor, "Duplicate", start.Add(3*time.Minute))
	dup.ID = third.ID
	if err := repo.ReplaceActivePlan(ctx, dup); !errors.Is(err, ErrDietPlanConflict) {
		t.Errorf("ReplaceActivePlan with a taken id = %v, want ErrDietPlanConflict", err)
	}
	if active, err := repo.GetActivePlan(ctx, patient.ID); err != nil || active.ID != third.ID {
		t.Errorf("failed save must roll back the archive step: %v, %+v", err, active)
	}
}
