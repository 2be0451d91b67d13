package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/smartdiet/smartdiet/internal/mealstream"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

const (
	dateLayout          = "2006-01-02"
	adherenceWindowDays = 30
	historyWindowDays   = 365
	maxMealNote         = 500
)

// Badge codes.
const (
	BadgeFirstLog    = "first_log"
	BadgeStreak3     = "streak_3"
	BadgeStreak7     = "streak_7"
	BadgeStreak30    = "streak_30"
	BadgePerfectWeek = "perfect_week"
	BadgeConsistent  = "consistent"
)

var badgeTitles = map[string]string{
	BadgeFirstLog:    "First meal logged",
	BadgeStreak3:     "3 day streak",
	BadgeStreak7:     "7 day streak",
	BadgeStreak30:    "30 day streak",
	BadgePerfectWeek: "Perfect week",
	BadgeConsistent:  "80% adherence",
}

// ProgressService records meal logs and computes progress summaries.
type ProgressService struct {
	meals     *repository.MealLogRepository
	care      *CareService
	publisher *mealstream.Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewProgressService creates a new ProgressService. When publisher is nil
// every log is written synchronously.
func NewProgressService(meals *repository.MealLogRepository, care *CareService, publisher *mealstream.Publisher, logger *slog.Logger, recorder metrics.Recorder) *ProgressService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ProgressService{
		meals:     meals,
		care:      care,
		publisher: publisher,
		logger:    logger,
		metrics:   recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MealLogInput is one meal check-in.
type MealLogInput struct {
	Date     string // YYYY-MM-DD, empty means today
	MealType model.MealType
	Followed bool
	Note     string
}

// MealLogResult reports how a log was accepted.
type MealLogResult struct {
	Log *model.MealLog `json:"log"`
	// Queued is true when the log waits in the stream for the aggregator.
	Queued bool `json:"queued"`
}

// buildMealLog validates in against today and returns the log to store.
func buildMealLog(patientID string, in MealLogInput, today time.Time) (*model.MealLog, error) {
	if !in.MealType.IsValid() {
		return nil, invalid("meal_type", "must be breakfast, lunch, dinner or snack")
	}

	today = truncateDay(today)
	day := today
	if in.Date != "" {
		parsed, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			return nil, invalid("date", "must be YYYY-MM-DD")
		}
		day = parsed.UTC()
	}
	// One day of slack covers clients ahead of UTC.
	if day.After(today.AddDate(0, 0, 1)) {
		return nil, invalid("date", "cannot be in the future")
	}
	if day.Before(today.AddDate(0, 0, -historyWindowDays)) {
		return nil, invalid("date", "is older than %d days", historyWindowDays)
	}

	note := textutil.CleanText(in.Note)
	if textutil.Length(note) > maxMealNote {
		return nil, invalid("note", "must be at most %d characters", maxMealNote)
	}

	return &model.MealLog{
		ID:        newID(),
		PatientID: patientID,
		Date:      day,
		MealType:  in.MealType,
		Followed:  in.Followed,
		Note:      note,
		LoggedAt:  now(),
	}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LogMeal records a meal. The log is queued on the meal stream; if the
// stream is unavailable it is written and aggregated synchronously.
func (s *ProgressService) LogMeal(ctx context.Context, patientID string, in MealLogInput) (*MealLogResult, error) {
	log, err := buildMealLog(patientID, in, s.now())
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		_, err := s.publisher.Publish(ctx, log)
		if err == nil {
			return &MealLogResult{Log: log, Queued: true}, nil
		}
		s.logger.Warn("meal stream unavailable, writing synchronously", "patient_id", patientID, "error", err)
	}

	logs := []*model.MealLog{log}
	if err := s.meals.BulkUpsert(ctx, logs); err != nil {
		return nil, err
	}
	if err := s.meals.UpdateDailyProgress(ctx, logs); err != nil {
		return nil, err
	}
	s.metrics.IncMealLogPublished("fallback")
	return &MealLogResult{Log: log, Queued: false}, nil
}

// Summary computes the progress view of patientID for viewer.
func (s *ProgressService) Summary(ctx context.Context, viewer *model.AuthContext, patientID string) (*model.ProgressSummary, error) {
	if err := s.care.CanViewPatient(ctx, viewer, patientID); err != nil {
		return nil, err
	}
	today := truncateDay(s.now())
	days, err := s.meals.GetDailyProgress(ctx, patientID, today.AddDate(0, 0, -historyWindowDays), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	summary := ComputeProgress(days, today)
	summary.PatientID = patientID
	return summary, nil
}

// ComputeProgress derives streaks, adherence, goals and badges from daily
// aggregates. A day counts toward a streak when at least one meal was
// followed; the current streak may end yesterday if today has no logs yet.
func ComputeProgress(days []model.DailyProgress, today time.Time) *model.ProgressSummary {
	today = truncateDay(today)
	byDate := make(map[string]model.DailyProgress, len(days))
	var earliest time.Time
	for _, d := range days {
		key := d.Date.UTC().Format(dateLayout)
		byDate[key] = d
		if day := truncateDay(d.Date); earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
	}

	summary := &model.ProgressSummary{
		Badges:        []model.Badge{},
		LastSevenDays: make([]model.DayPoint, 0, 7),
		GeneratedAt:   time.Now().UTC(),
	}

	followedOn := func(t time.Time) bool {
		d, ok := byDate[t.Format(dateLayout)]
		return ok && d.Followed()
	}

	// Current streak.
	cursor := today
	if _, loggedToday := byDate[today.Format(dateLayout)]; !loggedToday {
		cursor = today.AddDate(0, 0, -1)
	}
	for followedOn(cursor) {
		summary.CurrentStreak++
		cursor = cursor.AddDate(0, 0, -1)
	}

	// Longest streak, goals and days following over all history.
	if !earliest.IsZero() {
		run := 0
		for day := earliest; !day.After(today); day = day.AddDate(0, 0, 1) {
			d, ok := byDate[day.Format(dateLayout)]
			if ok && d.Followed() {
				run++
				summary.DaysFollowing++
				summary.LongestStreak = max(summary.LongestStreak, run)
			} else {
				run = 0
			}
			if ok && d.GoalMet() {
				summary.GoalsAchieved++
			}
		}
	}

	// Adherence over the window.
	var logged, followed, loggedDays int
	windowStart := today.AddDate(0, 0, -(adherenceWindowDays - 1))
	for day := windowStart; !day.After(today); day = day.AddDate(0, 0, 1) {
		if d, ok := byDate[day.Format(dateLayout)]; ok {
			logged += d.MealsLogged
			followed += d.MealsFollowed
			if d.MealsLogged > 0 {
				loggedDays++
			}
		}
	}
	if logged > 0 {
		summary.Adherence = int(math.Round(float64(followed) * 100 / float64(logged)))
	}

	// Last seven days, oldest first.
	perfectWeek := true
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		d := byDate[day.Format(dateLayout)]
		summary.LastSevenDays = append(summary.LastSevenDays, model.DayPoint{
			Date:          day.Format(dateLayout),
			MealsLogged:   d.MealsLogged,
			MealsFollowed: d.MealsFollowed,
		})
		if !d.GoalMet() {
			perfectWeek = false
		}
	}

	award := func(code string) {
		summary.Badges = append(summary.Badges, model.Badge{Code: code, Title: badgeTitles[code]})
	}
	if len(days) > 0 {
		award(BadgeFirstLog)
	}
	if summary.LongestStreak >= 3 {
		award(BadgeStreak3)
	}
	if summary.LongestStreak >= 7 {
		award(BadgeStreak7)
	}
	if summary.LongestStreak >= 30 {
		award(BadgeStreak30)
	}
	if perfectWeek {
		award(BadgePerfectWeek)
	}
	if loggedDays >= 7 && summary.Adherence >= 80 {
		award(BadgeConsistent)
	}
	return summary
}
