// Package export renders diet plans as downloadable spreadsheets.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/smartdiet/smartdiet/internal/model"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	planSheet    = "Plan"
	historySheet = "History"
)

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename returns an attachment name for plan like "balanced-start.xlsx".
func Filename(plan *model.DietPlan) string {
	name := strings.ToLower(strings.TrimSpace(plan.PlanName))
	name = strings.Trim(unsafeFilenameRe.ReplaceAllString(name, "-"), "-")
	if name == "" {
		name = "diet-plan"
	}
	return name + ".xlsx"
}

// WriteDietPlan writes a workbook for plan to w. The first sheet holds the
// plan header and meals; when history is non-empty a second sheet lists the
// archived plans newest first.
func WriteDietPlan(w io.Writer, plan *model.DietPlan, history []*model.DietPlan) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", planSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writePlanSheet(f, plan); err != nil {
		return err
	}
	if len(history) > 0 {
		if _, err := f.NewSheet(historySheet); err != nil {
			return fmt.Errorf("create history sheet: %w", err)
		}
		if err := writeHistorySheet(f, history); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writePlanSheet(f *excelize.File, plan *model.DietPlan) error {
	sw, err := f.NewStreamWriter(planSheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, 1, 18); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 2, 60); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Plan", plan.PlanName},
		{"Nutritionist", plan.NutritionistName},
		{"Duration", plan.Duration},
		{"Calorie target", plan.CalorieTarget},
		{"Created", plan.CreatedAt.UTC().Format("2006-01-02")},
		{},
		{"Meal", "Description"},
	}
	for _, meal := range plan.Meals() {
		rows = append(rows, []interface{}{meal.Type, meal.Description})
	}
	if plan.Notes != "" {
		rows = append(rows, []interface{}{}, []interface{}{"Notes", plan.Notes})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush plan sheet: %w", err)
	}
	return nil
}

func writeHistorySheet(f *excelize.File, history []*model.DietPlan) error {
	sw, err := f.NewStreamWriter(historySheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	header := []interface{}{"Plan", "Status", "Calorie target", "Nutritionist", "Created"}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, p := range history {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			p.PlanName,
			string(p.Status),
			p.CalorieTarget,
			p.NutritionistName,
			p.CreatedAt.UTC().Format("2006-01-02"),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write history row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush history sheet: %w", err)
	}
	return nil
}
