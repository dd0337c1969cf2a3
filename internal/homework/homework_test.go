package homework

import (
	"context"
	"errors"
	"testing"
	"time"

	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/portal"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var shanghai = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
	return loc
}()

var now = time.Date(2024, time.October, 15, 12, 0, 0, 0, shanghai)

func at(offset time.Duration) string {
	return now.Add(offset).Format("2006-01-02 15:04:05")
}

func TestDaysLeftAndFlags(t *testing.T) {
	cases := []struct {
		name     string
		offset   time.Duration
		daysLeft int
		overdue  bool
		urgent   bool
	}{
		{name: "one second overdue", offset: -time.Second, daysLeft: 0, overdue: true, urgent: false},
		{name: "exactly now", offset: 0, daysLeft: 0, overdue: false, urgent: true},
		{name: "half a day", offset: 12 * time.Hour, daysLeft: 1, overdue: false, urgent: true},
		{name: "exactly three days", offset: 72 * time.Hour, daysLeft: 3, overdue: false, urgent: true},
		{name: "three days and a second", offset: 72*time.Hour + time.Second, daysLeft: 4, overdue: false, urgent: false},
		{name: "two days ago", offset: -48 * time.Hour, daysLeft: -2, overdue: true, urgent: false},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			a := NewAssignment(portal.Record{EndTime: at(test.offset)}, portal.Course{}, KindHomework, now)
			require.NotNil(t, a.DaysLeft)
			require.Equal(t, test.daysLeft, *a.DaysLeft)
			require.Equal(t, test.overdue, a.IsOverdue)
			require.Equal(t, test.urgent, a.IsUrgent)
		})
	}
}

func TestNewAssignment(t *testing.T) {
	rec := portal.Record{
		ID:          "7",
		Title:       " 实验报告 ",
		EndTime:     "2024-10-20 23:59",
		OpenDate:    "2024-10-01",
		Content:     "<p>完成<b>实验</b></p>",
		SubStatus:   "已提交",
		SubmitCount: "12",
		AllCount:    "60",
		Score:       "95",
	}
	course := portal.Course{ID: "101", Name: "数据结构"}

	a := NewAssignment(rec, course, KindReport, now)
	due := time.Date(2024, time.October, 20, 23, 59, 0, 0, shanghai)
	daysLeft := 6

	expect := Assignment{
		ID:             "7",
		Title:          "实验报告",
		CourseID:       "101",
		CourseName:     "数据结构",
		Content:        "完成实验",
		DueAt:          &due,
		DueRaw:         "2024-10-20 23:59",
		CreatedAt:      "2024-10-01",
		Status:         StatusSubmitted,
		SubmittedCount: 12,
		TotalCount:     60,
		Kind:           KindReport,
		Score:          "95",
		DaysLeft:       &daysLeft,
	}
	if diff := cmp.Diff(expect, a); diff != "" {
		t.Fatal(diff)
	}
}

func TestNewAssignmentFallbacks(t *testing.T) {
	a := NewAssignment(portal.Record{EndTime: "soon", SubmitCount: "1"}, portal.Course{ID: "9"}, KindHomework, now)
	require.Nil(t, a.DueAt)
	require.Nil(t, a.DaysLeft)
	require.False(t, a.IsOverdue)
	require.False(t, a.IsUrgent)
	require.Equal(t, NoContent, a.Content)
	require.Equal(t, "9", a.CourseID)
	require.Equal(t, StatusSubmitted, a.Status)

	b := NewAssignment(portal.Record{SubStatus: "未提交", SubmitCount: "3"}, portal.Course{}, KindHomework, now)
	require.Equal(t, StatusUnsubmitted, b.Status)
}

func dated(id string, offset time.Duration) Assignment {
	return NewAssignment(portal.Record{ID: portal.FlexString(id), EndTime: at(offset)}, portal.Course{}, KindHomework, now)
}

func undated(id string) Assignment {
	return NewAssignment(portal.Record{ID: portal.FlexString(id)}, portal.Course{}, KindHomework, now)
}

func ids(items []Assignment) []string {
	out := []string{}
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func TestSortByDue(t *testing.T) {
	items := []Assignment{
		dated("late", 72*time.Hour),
		undated("x"),
		dated("early", time.Hour),
		dated("tie-a", 24*time.Hour),
		undated("y"),
		dated("tie-b", 24*time.Hour),
	}
	sorted := SortByDue(items)
	if diff := cmp.Diff([]string{"early", "x", "tie-a", "tie-b", "y", "late"}, ids(sorted)); diff != "" {
		t.Fatal(diff)
	}
	// the input is left untouched
	require.Equal(t, "late", items[0].ID)
}

func TestSummarize(t *testing.T) {
	submitted := dated("s", -time.Hour)
	submitted.Status = StatusSubmitted

	items := []Assignment{
		dated("overdue", -time.Hour),
		dated("urgent", time.Hour),
		dated("later", 10*24*time.Hour),
		submitted,
		undated("u"),
	}
	require.Equal(t, Summary{Total: 5, Unsubmitted: 4, Submitted: 1, Overdue: 1, Urgent: 1}, Summarize(items))
}

func TestFilter(t *testing.T) {
	calculus := NewAssignment(portal.Record{ID: "m", EndTime: at(time.Hour)}, portal.Course{Name: "高等数学 A"}, KindHomework, now)
	physics := NewAssignment(portal.Record{ID: "p", EndTime: at(time.Hour), SubStatus: "已提交"}, portal.Course{Name: "大学物理"}, KindHomework, now)
	stale := dated("stale", -20*24*time.Hour)
	recent := dated("recent", -10*24*time.Hour)
	far := dated("far", 100*24*time.Hour)
	noDue := undated("none")
	items := []Assignment{calculus, physics, stale, recent, far, noDue}

	cases := []struct {
		name   string
		filter Filter
		expect []string
	}{
		{name: "defaults", filter: Filter{}, expect: []string{"m", "recent", "none"}},
		{name: "all", filter: Filter{Status: FinishAll}, expect: []string{"m", "p", "recent", "none"}},
		{name: "finished", filter: Filter{Status: FinishFinished}, expect: []string{"p"}},
		{name: "keywords", filter: Filter{Status: FinishAll, CourseKeywords: []string{"数学", "物理"}}, expect: []string{"m", "p"}},
		{
			name:   "wide windows",
			filter: Filter{IgnoreExpiredDays: intPtr(30), IgnoreUnexpiredDays: intPtr(365)},
			expect: []string{"m", "stale", "recent", "far", "none"},
		},
		{name: "no expired", filter: Filter{IgnoreExpiredDays: intPtr(0)}, expect: []string{"m", "none"}},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.expect, ids(test.filter.Apply(items, now))); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	require.Error(t, Filter{Status: "pending"}.Validate())
	require.Error(t, Filter{IgnoreExpiredDays: intPtr(-1)}.Validate())
	require.NoError(t, Filter{}.Validate())
}

type fakeSource struct {
	term       string
	termErr    error
	courses    []portal.Course
	coursesErr error
	records    map[string][]portal.Record
	errs       map[string]error
	calls      int
}

func key(course portal.Course, subtype portal.Subtype) string {
	return course.ID.String() + "/" + subtype.String()
}

func (s *fakeSource) CurrentTerm(context.Context) (string, error) {
	return s.term, s.termErr
}

func (s *fakeSource) Courses(context.Context, string) ([]portal.Course, error) {
	return s.courses, s.coursesErr
}

func (s *fakeSource) Assignments(_ context.Context, course portal.Course, subtype portal.Subtype) ([]portal.Record, error) {
	s.calls++
	if err := s.errs[key(course, subtype)]; err != nil {
		return nil, err
	}
	return s.records[key(course, subtype)], nil
}

func newTestAggregator(source Source, tel telemetry.API) Aggregator {
	return NewAggregator(source, chrono.Static{At: now}, AggregatorOptions{}, tel)
}

func TestAggregateTwoCourses(t *testing.T) {
	courseA := portal.Course{ID: "A", Name: "Course A"}
	courseB := portal.Course{ID: "B", Name: "Course B"}
	source := &fakeSource{
		term:    "2024202501",
		courses: []portal.Course{courseA, courseB},
		records: map[string][]portal.Record{
			"A/homework":   {{ID: "a1", EndTime: at(48 * time.Hour), SubStatus: "未提交"}},
			"A/report":     {{ID: "a2", EndTime: at(-24 * time.Hour), SubStatus: "未提交"}},
			"A/experiment": {{ID: "a3", EndTime: at(10 * 24 * time.Hour), SubStatus: "已提交"}},
			"B/homework":   {{ID: "b1", EndTime: at(time.Hour), SubStatus: "未提交"}},
		},
	}

	res, err := newTestAggregator(source, &telemetry.MemoryAPI{}).Aggregate(context.Background())
	require.NoError(t, err)

	require.Equal(t, 6, source.calls)
	require.Equal(t, "2024202501", res.TermCode)
	require.Equal(t, now, res.FetchedAt)
	if diff := cmp.Diff([]string{"a2", "b1", "a1", "a3"}, ids(res.Assignments)); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, Summary{Total: 4, Unsubmitted: 3, Submitted: 1, Overdue: 1, Urgent: 2}, res.Summary)
	require.Equal(t, KindReport, res.Assignments[0].Kind)
	require.Equal(t, "Course B", res.Assignments[1].CourseName)
}

func TestAggregatePartialFailure(t *testing.T) {
	course := portal.Course{ID: "A", Name: "Course A"}
	source := &fakeSource{
		term:    "t",
		courses: []portal.Course{course},
		records: map[string][]portal.Record{
			"A/homework":   {{ID: "h", EndTime: at(time.Hour)}},
			"A/experiment": {{ID: "e", EndTime: at(2 * time.Hour)}},
		},
		errs: map[string]error{"A/report": &portal.HttpError{Status: 500}},
	}
	mem := &telemetry.MemoryAPI{}

	res, err := newTestAggregator(source, mem).Aggregate(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"h", "e"}, ids(res.Assignments))
	require.Len(t, mem.Reports("warning"), 1)
}

func TestAggregateFatalFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := newTestAggregator(&fakeSource{termErr: boom}, &telemetry.MemoryAPI{}).Aggregate(context.Background())
	require.ErrorIs(t, err, boom)

	_, err = newTestAggregator(&fakeSource{coursesErr: boom}, &telemetry.MemoryAPI{}).Aggregate(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestAggregateNoCourses(t *testing.T) {
	res, err := newTestAggregator(&fakeSource{term: "t"}, &telemetry.MemoryAPI{}).Aggregate(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Assignments)
	require.Equal(t, Summary{}, res.Summary)
}
