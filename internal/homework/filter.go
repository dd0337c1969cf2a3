package homework

import (
	"fmt"
	"math"
	"time"

	"hwtrack-backend/lib/textutil"
)

type FinishStatus string

const (
	FinishAll        FinishStatus = "all"
	FinishFinished   FinishStatus = "finished"
	FinishUnfinished FinishStatus = "unfinished"
)

const (
	DefaultIgnoreExpiredDays   = 15
	DefaultIgnoreUnexpiredDays = 90
)

// Filter narrows a result down to what a reader asked for. Zero values mean the
// defaults: unfinished only, every course, the default time windows.
type Filter struct {
	Status         FinishStatus `json:"status"`
	CourseKeywords []string     `json:"courseKeywords"`
	// IgnoreExpiredDays drops assignments overdue by more than this many days.
	IgnoreExpiredDays *int `json:"ignoreExpiredDays"`
	// IgnoreUnexpiredDays drops assignments due more than this many days ahead.
	IgnoreUnexpiredDays *int `json:"ignoreUnexpiredDays"`
}

func intPtr(n int) *int {
	return &n
}

func (f Filter) WithDefaults() Filter {
	if f.Status == "" {
		f.Status = FinishUnfinished
	}
	if f.IgnoreExpiredDays == nil {
		f.IgnoreExpiredDays = intPtr(DefaultIgnoreExpiredDays)
	}
	if f.IgnoreUnexpiredDays == nil {
		f.IgnoreUnexpiredDays = intPtr(DefaultIgnoreUnexpiredDays)
	}
	return f
}

func (f Filter) Validate() error {
	switch f.Status {
	case "", FinishAll, FinishFinished, FinishUnfinished:
	default:
		return fmt.Errorf("unknown finish status %q", f.Status)
	}
	if f.IgnoreExpiredDays != nil && *f.IgnoreExpiredDays < 0 {
		return fmt.Errorf("ignoreExpiredDays must not be negative")
	}
	if f.IgnoreUnexpiredDays != nil && *f.IgnoreUnexpiredDays < 0 {
		return fmt.Errorf("ignoreUnexpiredDays must not be negative")
	}
	return nil
}

func (f Filter) keep(a Assignment, now time.Time) bool {
	switch f.Status {
	case FinishFinished:
		if a.Status != StatusSubmitted {
			return false
		}
	case FinishUnfinished:
		if a.Status != StatusUnsubmitted {
			return false
		}
	}

	if len(f.CourseKeywords) > 0 && !textutil.MatchName(a.CourseName, f.CourseKeywords) {
		return false
	}

	if a.DueAt == nil {
		return true
	}
	diff := a.DueAt.Sub(now)
	days := int(math.Floor(diff.Hours() / 24))
	if diff < 0 && -days > *f.IgnoreExpiredDays {
		return false
	}
	if diff > 0 && days > *f.IgnoreUnexpiredDays {
		return false
	}
	return true
}

// Apply returns the assignments passing the filter, in their original order.
func (f Filter) Apply(items []Assignment, now time.Time) []Assignment {
	f = f.WithDefaults()
	out := []Assignment{}
	for _, a := range items {
		if f.keep(a, now) {
			out = append(out, a)
		}
	}
	return out
}
