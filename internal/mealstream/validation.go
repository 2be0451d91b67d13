package mealstream

import (
	"fmt"
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
)

const maxNoteLength = 500

// ValidatePayload checks a stream payload before it reaches the database.
func ValidatePayload(p MealLogPayload) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.PatientID == "" {
		return fmt.Errorf("patient id is required")
	}
	if _, err := time.Parse(dateLayout, p.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}
	if !model.MealType(p.MealType).IsValid() {
		return fmt.Errorf("unknown meal type %q", p.MealType)
	}
	if p.LoggedAt <= 0 {
		return fmt.Errorf("logged_at must be set")
	}
	if len(p.Note) > maxNoteLength {
		return fmt.Errorf("note too long")
	}
	return nil
}
