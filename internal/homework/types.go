package homework

import (
	"time"

	"hwtrack-backend/internal/portal"
)

type Kind string

const (
	KindHomework   Kind = "homework"
	KindReport     Kind = "report"
	KindExperiment Kind = "experiment"
)

func KindOf(subtype portal.Subtype) Kind {
	switch subtype {
	case portal.SubtypeReport:
		return KindReport
	case portal.SubtypeExperiment:
		return KindExperiment
	default:
		return KindHomework
	}
}

type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnsubmitted Status = "unsubmitted"
)

type Assignment struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	CourseID       string     `json:"courseId"`
	CourseName     string     `json:"courseName"`
	Content        string     `json:"content"`
	DueAt          *time.Time `json:"dueAt"`
	DueRaw         string     `json:"dueRaw"`
	CreatedAt      string     `json:"createdAt"`
	Status         Status     `json:"submissionStatus"`
	SubmittedCount int        `json:"submittedCount"`
	TotalCount     int        `json:"totalCount"`
	Kind           Kind       `json:"kind"`
	Score          string     `json:"score,omitempty"`

	// DaysLeft is nil when the due time is unknown.
	DaysLeft  *int `json:"daysLeft"`
	IsOverdue bool `json:"isOverdue"`
	IsUrgent  bool `json:"isUrgent"`
}

type Summary struct {
	Total       int `json:"total"`
	Unsubmitted int `json:"unsubmitted"`
	Submitted   int `json:"submitted"`
	// Overdue and Urgent only count unsubmitted assignments.
	Overdue int `json:"overdue"`
	Urgent  int `json:"urgent"`
}

type Result struct {
	Assignments []Assignment `json:"assignments"`
	Summary     Summary      `json:"summary"`
	TermCode    string       `json:"termCode"`
	FetchedAt   time.Time    `json:"fetchedAt"`
}
