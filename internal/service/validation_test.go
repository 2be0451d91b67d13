package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

func ptr[T any](v T) *T { return &v }

func isValidation(err error, field string) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Field == field
}

func TestValidateSignup(t *testing.T) {
	t.Parallel()

	base := func() SignupInput {
		return SignupInput{
			Role:            model.RolePatient,
			Email:           "  Jane@Example.COM ",
			Password:        "secret1",
			ConfirmPassword: "secret1",
			Name:            "  <b>Jane</b>   Doe ",
			Age:             30,
			HeightCM:        165,
			WeightKG:        60,
		}
	}

	t.Run("normalizes patient", func(t *testing.T) {
		in := base()
		email, err := validateSignup(&in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if email != "jane@example.com" {
			t.Errorf("email = %q", email)
		}
		if in.Name != "Jane Doe" {
			t.Errorf("name = %q", in.Name)
		}
	})

	t.Run("doctor medical id upper-cased", func(t *testing.T) {
		in := base()
		in.Role = model.RoleDoctor
		in.MedicalID = " med-42 "
		if _, err := validateSignup(&in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if in.MedicalID != "MED-42" {
			t.Errorf("medical id = %q", in.MedicalID)
		}
	})

	testCases := []struct {
		name    string
		mutate  func(*SignupInput)
		wantErr error
		field   string
	}{
		{"admin role", func(in *SignupInput) { in.Role = model.RoleAdmin }, ErrInvalidRole, ""},
		{"password mismatch", func(in *SignupInput) { in.ConfirmPassword = "other11" }, auth.ErrPasswordMismatch, ""},
		{"weak password", func(in *SignupInput) { in.Password, in.ConfirmPassword = "abc", "abc" }, auth.ErrWeakPassword, ""},
		{"bad email", func(in *SignupInput) { in.Email = "not-an-email" }, auth.ErrInvalidEmail, ""},
		{"blank name", func(in *SignupInput) { in.Name = "<i></i>" }, nil, "name"},
		{"doctor without medical id", func(in *SignupInput) { in.Role = model.RoleDoctor }, nil, "medical_id"},
		{"age out of range", func(in *SignupInput) { in.Age = 130 }, nil, "age"},
		{"height out of range", func(in *SignupInput) { in.HeightCM = 300 }, nil, "height_cm"},
		{"negative weight", func(in *SignupInput) { in.WeightKG = -1 }, nil, "weight_kg"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := validateSignup(&in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.field != "" && !isValidation(err, tc.field) {
				t.Errorf("err = %v, want validation error on %s", err, tc.field)
			}
		})
	}
}

func TestApplyProfileUpdate(t *testing.T) {
	t.Parallel()

	t.Run("patient fields", func(t *testing.T) {
		user := &model.User{Role: model.RolePatient, Name: "Old", Age: 30}
		err := applyProfileUpdate(user, ProfileUpdate{
			Name:      ptr("New Name"),
			WeightKG:  ptr(70.5),
			Allergies: ptr([]string{"Peanuts", "peanuts", " ", "Shellfish"}),
			Bio:       ptr("ignored for patients"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Name != "New Name" || user.WeightKG != 70.5 {
			t.Errorf("unexpected user: %+v", user)
		}
		if len(user.Allergies) != 2 || user.Allergies[0] != "Peanuts" || user.Allergies[1] != "Shellfish" {
			t.Errorf("allergies = %v", user.Allergies)
		}
		if user.Bio != "" {
			t.Errorf("patient bio should not change, got %q", user.Bio)
		}
	})

	t.Run("doctor fields", func(t *testing.T) {
		user := &model.User{Role: model.RoleDoctor, Name: "Dr"}
		err := applyProfileUpdate(user, ProfileUpdate{
			Qualifications: ptr([]string{"RD", "MSc Nutrition"}),
			Availability:   ptr("Mon-Fri 9-5"),
			Age:            ptr(500),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(user.Qualifications) != 2 || user.Availability != "Mon-Fri 9-5" {
			t.Errorf("unexpected doctor: %+v", user)
		}
		if user.Age != 0 {
			t.Errorf("doctor age should be ignored, got %d", user.Age)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		testCases := []struct {
			name   string
			role   model.Role
			update ProfileUpdate
			field  string
		}{
			{"empty name", model.RolePatient, ProfileUpdate{Name: ptr("   ")}, "name"},
			{"long phone", model.RolePatient, ProfileUpdate{Phone: ptr(strings.Repeat("1", 33))}, "phone"},
			{"bad age", model.RolePatient, ProfileUpdate{Age: ptr(-2)}, "age"},
			{"long bio", model.RoleDoctor, ProfileUpdate{Bio: ptr(strings.Repeat("b", maxBioLength+1))}, "bio"},
		}
		for _, tc := range testCases {
			user := &model.User{Role: tc.role, Name: "Someone"}
			if err := applyProfileUpdate(user, tc.update); !isValidation(err, tc.field) {
				t.Errorf("%s: err = %v, want validation error on %s", tc.name, err, tc.field)
			}
		}
	})

	t.Run("bad email", func(t *testing.T) {
		user := &model.User{Role: model.RolePatient}
		if err := applyProfileUpdate(user, ProfileUpdate{Email: ptr("nope")}); !errors.Is(err, auth.ErrInvalidEmail) {
			t.Errorf("err = %v, want ErrInvalidEmail", err)
		}
	})
}

func TestCleanList(t *testing.T) {
	t.Parallel()

	tooMany := make([]string, maxListItems+1)
	for i := range tooMany {
		tooMany[i] = "item"
	}
	if _, err := cleanList("allergies", tooMany); !isValidation(err, "allergies") {
		t.Errorf("expected count error, got %v", err)
	}
	if _, err := cleanList("allergies", []string{strings.Repeat("x", maxListItem+1)}); !isValidation(err, "allergies") {
		t.Errorf("expected length error, got %v", err)
	}

	got, err := cleanList("health_issues", []string{"Diabetes", "<b>diabetes</b>", "", "Asthma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "Diabetes" || got[1] != "Asthma" {
		t.Errorf("cleanList = %v", got)
	}
}

func TestDetectDocumentType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content []byte
		want    string
		wantErr bool
	}{
		{"pdf", []byte("%PDF-1.7\n1 0 obj\n"), "application/pdf", false},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "image/png", false},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF"), "image/jpeg", false},
		{"text", []byte("just some text"), "", true},
		{"html", []byte("<html><body>x</body></html>"), "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := detectDocumentType(tc.content)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedFileType) {
					t.Fatalf("err = %v, want ErrUnsupportedFileType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("type = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCleanFileName(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"certificate.pdf":         "certificate.pdf",
		`C:\Users\me\id card.png`: "id card.png",
		"../../etc/passwd":        "passwd",
		"":                        "document",
		"/":                       "document",
		"  spaced    name.jpg  ":  "spaced name.jpg",
	}
	for in, want := range testCases {
		if got := cleanFileName(in); got != want {
			t.Errorf("cleanFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRosterEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	approvedLongAgo := now.AddDate(0, 0, -90)
	approvedRecently := now.AddDate(0, 0, -4)

	testCases := []struct {
		name          string
		row           repository.RosterRow
		wantAdherence int
		wantProgress  int
		wantDays      int
	}{
		{
			name:          "full window",
			row:           repository.RosterRow{Entry: model.RosterEntry{ApprovedAt: &approvedLongAgo}, MealsLogged: 40, MealsFollowed: 30, DaysFollowed: 15},
			wantAdherence: 75,
			wantProgress:  50,
			wantDays:      90,
		},
		{
			name:          "recent approval shrinks window",
			row:           repository.RosterRow{Entry: model.RosterEntry{ApprovedAt: &approvedRecently}, MealsLogged: 3, MealsFollowed: 1, DaysFollowed: 5},
			wantAdherence: 33,
			wantProgress:  100,
			wantDays:      4,
		},
		{
			name:     "no logs",
			row:      repository.RosterRow{Entry: model.RosterEntry{ApprovedAt: &approvedLongAgo}},
			wantDays: 90,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := rosterEntry(&tc.row, now)
			if got.Adherence != tc.wantAdherence || got.Progress != tc.wantProgress || got.DaysFollowing != tc.wantDays {
				t.Errorf("rosterEntry = adherence %d progress %d days %d, want %d %d %d",
					got.Adherence, got.Progress, got.DaysFollowing, tc.wantAdherence, tc.wantProgress, tc.wantDays)
			}
		})
	}
}

func TestNormalizeDietPlan(t *testing.T) {
	t.Parallel()

	in := DietPlanInput{
		PlanName:  "  Spring <em>reset</em> ",
		Breakfast: "Oats",
		Notes:     "Drink **water**<script>alert(1)</script>",
	}
	if err := normalizeDietPlan(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.PlanName != "Spring reset" {
		t.Errorf("plan name = %q", in.PlanName)
	}
	html, err := textutil.RenderMarkdown(in.Notes)
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if strings.Contains(html, "<script") {
		t.Errorf("rendered notes kept raw HTML: %q", html)
	}

	notes := "\r\n1. Breakfast\r\n   - oats\r\n   - berries\r\n\nSwap freely.\r\n\n    protein = 30g\r\n\nSee <https://example.com/guide> for swaps.  \r\n"
	in = DietPlanInput{PlanName: "Markdown", Lunch: "Soup", Notes: notes}
	if err := normalizeDietPlan(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "1. Breakfast\n   - oats\n   - berries\n\nSwap freely.\n\n    protein = 30g\n\nSee <https://example.com/guide> for swaps."
	if in.Notes != want {
		t.Errorf("notes = %q, want %q", in.Notes, want)
	}
	html, err = textutil.RenderMarkdown(in.Notes)
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	for _, frag := range []string{"<ol>", "<ul>", "<li>oats</li>", "<pre><code>protein = 30g", `<a href="https://example.com/guide">`} {
		if !strings.Contains(html, frag) {
			t.Errorf("rendered notes missing %q:\n%s", frag, html)
		}
	}

	testCases := []struct {
		name  string
		in    DietPlanInput
		field string
	}{
		{"missing name", DietPlanInput{Breakfast: "Oats"}, "plan_name"},
		{"no meals", DietPlanInput{PlanName: "Empty"}, "meals"},
		{"low calories", DietPlanInput{PlanName: "P", Lunch: "Soup", CalorieTarget: 500}, "calorie_target"},
		{"high calories", DietPlanInput{PlanName: "P", Lunch: "Soup", CalorieTarget: 7000}, "calorie_target"},
		{"long meal", DietPlanInput{PlanName: "P", Dinner: strings.Repeat("d", maxMealLength+1)}, "dinner"},
		{"long notes", DietPlanInput{PlanName: "P", Snacks: "Nuts", Notes: strings.Repeat("n", maxNotesLength+1)}, "notes"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			if err := normalizeDietPlan(&in); !isValidation(err, tc.field) {
				t.Errorf("err = %v, want validation error on %s", err, tc.field)
			}
		})
	}
}

func TestSanitizeMessage(t *testing.T) {
	t.Parallel()

	got, err := sanitizeMessage("  hello <b>there</b>  ")
	if err != nil || got != "hello there" {
		t.Errorf("sanitizeMessage = %q, %v", got, err)
	}
	if _, err := sanitizeMessage("<p> </p>"); !isValidation(err, "text") {
		t.Errorf("expected empty message error, got %v", err)
	}
	if _, err := sanitizeMessage(strings.Repeat("é", model.MaxMessageLength)); err != nil {
		t.Errorf("max length message rejected: %v", err)
	}
	if _, err := sanitizeMessage(strings.Repeat("é", model.MaxMessageLength+1)); !isValidation(err, "text") {
		t.Errorf("expected length error, got %v", err)
	}
}

func TestValidateReview(t *testing.T) {
	t.Parallel()

	review := &model.Review{}
	err := applyReview(review, ReviewInput{Rating: ptr(4), Title: ptr(" Great <b>help</b> "), Content: ptr("Lost 3kg")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if review.Rating != 4 || review.Title != "Great help" || review.Content != "Lost 3kg" {
		t.Errorf("unexpected review: %+v", review)
	}

	for _, rating := range []int{0, 6, -1} {
		if err := applyReview(&model.Review{}, ReviewInput{Rating: ptr(rating)}); !isValidation(err, "rating") {
			t.Errorf("rating %d: err = %v", rating, err)
		}
	}
	if err := applyReview(&model.Review{}, ReviewInput{Title: ptr(strings.Repeat("t", maxReviewTitle+1))}); !isValidation(err, "title") {
		t.Errorf("expected title error, got %v", err)
	}
	if err := applyReview(&model.Review{}, ReviewInput{Content: ptr(strings.Repeat("c", maxReviewContent+1))}); !isValidation(err, "content") {
		t.Errorf("expected content error, got %v", err)
	}
}

func TestValidateBooking(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	in := BookingInput{ScheduledAt: now.Add(48 * time.Hour), Notes: "  bring <i>labs</i> "}
	if err := validateBooking(&in, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.DurationMinutes != 30 {
		t.Errorf("default duration = %d, want 30", in.DurationMinutes)
	}
	if in.Notes != "bring labs" {
		t.Errorf("notes = %q", in.Notes)
	}

	testCases := []struct {
		name  string
		in    BookingInput
		field string
	}{
		{"missing time", BookingInput{}, "scheduled_at"},
		{"past", BookingInput{ScheduledAt: now.Add(-time.Minute)}, "scheduled_at"},
		{"too far ahead", BookingInput{ScheduledAt: now.AddDate(2, 0, 0)}, "scheduled_at"},
		{"too short", BookingInput{ScheduledAt: now.Add(time.Hour), DurationMinutes: 10}, "duration_minutes"},
		{"too long", BookingInput{ScheduledAt: now.Add(time.Hour), DurationMinutes: 121}, "duration_minutes"},
		{"long notes", BookingInput{ScheduledAt: now.Add(time.Hour), Notes: strings.Repeat("n", maxConsultationNotes+1)}, "notes"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			if err := validateBooking(&in, now); !isValidation(err, tc.field) {
				t.Errorf("err = %v, want validation error on %s", err, tc.field)
			}
		})
	}
}
