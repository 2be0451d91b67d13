package repository

import (
	"testing"
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
)

func TestUniqueDailyKeys(t *testing.T) {
	morning := time.Date(2026, 4, 2, 7, 30, 0, 0, time.UTC)
	evening := time.Date(2026, 4, 2, 19, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 4, 3, 8, 0, 0, 0, time.UTC)

	logs := []*model.MealLog{
		{PatientID: "p1", Date: morning, MealType: model.MealBreakfast},
		{PatientID: "p1", Date: evening, MealType: model.MealDinner},
		{PatientID: "p1", Date: nextDay, MealType: model.MealBreakfast},
		{PatientID: "p2", Date: morning, MealType: model.MealLunch},
	}

	keys := uniqueDailyKeys(logs)
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %+v", len(keys), keys)
	}
	if keys[0].patientID != "p1" || !keys[0].date.Equal(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected first key: %+v", keys[0])
	}
	if keys[2].patientID != "p2" {
		t.Errorf("expected p2 last, got %+v", keys[2])
	}
}

func TestCursorRoundTrip(t *testing.T) {
	in := &PaginationCursor{ID: "01HZXY", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	out, err := decodeCursor(encodeCursor(in))
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if out.ID != in.ID || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("cursor mismatch: %+v vs %+v", out, in)
	}

	if _, err := decodeCursor("not base64!"); err == nil {
		t.Error("expected error for invalid cursor")
	}
	if _, err := decodeCursor(encodeCursor(&PaginationCursor{})); err == nil {
		t.Error("expected error for cursor without id")
	}
}

func TestEmptyIfNil(t *testing.T) {
	if got := emptyIfNil(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	in := []string{"a"}
	if got := emptyIfNil(in); len(got) != 1 {
		t.Errorf("expected passthrough, got %#v", got)
	}
	if nullableString("") != nil || nullableString("x") != "x" {
		t.Error("nullableString mismatch")
	}
}
