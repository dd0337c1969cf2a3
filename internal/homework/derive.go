package homework

import (
	"math"
	"sort"
	"strings"
	"time"

	"hwtrack-backend/internal/portal"
	"hwtrack-backend/lib/htmlutil"
)

// NoContent replaces empty assignment descriptions.
const NoContent = "无详情"

// UrgentDays is the largest number of days left that still counts as urgent.
const UrgentDays = 3

var dueLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

// ParseDue parses the portal's due time in loc, ok is false for empty or
// unrecognized values.
func ParseDue(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysLeft is the ceiling of the remaining time in days, negative once overdue.
func DaysLeft(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

func statusOf(rec portal.Record) Status {
	switch strings.TrimSpace(rec.SubStatus) {
	case "已提交":
		return StatusSubmitted
	case "未提交":
		return StatusUnsubmitted
	}
	if rec.SubmitCount.Int() > 0 {
		return StatusSubmitted
	}
	return StatusUnsubmitted
}

// NewAssignment converts a portal record, computing the derived fields against now.
func NewAssignment(rec portal.Record, course portal.Course, kind Kind, now time.Time) Assignment {
	content := htmlutil.PlainText(rec.Content)
	if content == "" {
		content = NoContent
	}
	courseID := rec.CourseID.String()
	if courseID == "" {
		courseID = course.ID.String()
	}

	a := Assignment{
		ID:             rec.ID.String(),
		Title:          strings.TrimSpace(rec.Title),
		CourseID:       courseID,
		CourseName:     course.Name,
		Content:        content,
		DueRaw:         rec.EndTime,
		CreatedAt:      rec.OpenDate,
		Status:         statusOf(rec),
		SubmittedCount: rec.SubmitCount.Int(),
		TotalCount:     rec.AllCount.Int(),
		Kind:           kind,
		Score:          rec.Score.String(),
	}

	due, ok := ParseDue(rec.EndTime, now.Location())
	if !ok {
		return a
	}
	daysLeft := DaysLeft(due, now)
	a.DueAt = &due
	a.DaysLeft = &daysLeft
	a.IsOverdue = due.Before(now)
	a.IsUrgent = !a.IsOverdue && daysLeft >= 0 && daysLeft <= UrgentDays
	return a
}

// SortByDue orders dated assignments ascending by due time. Undated assignments
// keep their positions and dated ones are reordered stably among the remaining
// positions.
func SortByDue(items []Assignment) []Assignment {
	out := append([]Assignment(nil), items...)

	slots := []int{}
	dated := []Assignment{}
	for i, a := range out {
		if a.DueAt != nil {
			slots = append(slots, i)
			dated = append(dated, a)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].DueAt.Before(*dated[j].DueAt)
	})
	for i, slot := range slots {
		out[slot] = dated[i]
	}
	return out
}

func Summarize(items []Assignment) Summary {
	s := Summary{Total: len(items)}
	for _, a := range items {
		if a.Status == StatusSubmitted {
			s.Submitted++
			continue
		}
		s.Unsubmitted++
		if a.IsOverdue {
			s.Overdue++
		}
		if a.IsUrgent {
			s.Urgent++
		}
	}
	return s
}
