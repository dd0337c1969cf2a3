package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"hwtrack-backend/internal/assert"
)

// NoDataMessage is what the homework endpoint answers for an empty category.
const NoDataMessage = "没有数据"

// Caller performs an authenticated GET and returns the JSON payload.
//
// note: fault injection point
type Caller interface {
	Call(ctx context.Context, url, referer string) (json.RawMessage, error)
}

// Client wraps the course platform endpoints.
type Client struct {
	caller  Caller
	baseURL string
}

func NewClient(caller Caller, baseURL string) Client {
	assert.NotNil(caller)
	assert.NotEmptyStr(baseURL)
	return Client{caller: caller, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c Client) endpoint(path string, query url.Values) string {
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
}

func decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return out, nil
}

// CurrentTerm returns the code of the current academic term.
func (c Client) CurrentTerm(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:CurrentTerm")
	defer span.End()

	payload, err := c.caller.Call(ctx, c.endpoint("/back/rp/common/teachCalendar.shtml", url.Values{
		"method": {"queryCurrentXq"},
	}), "")
	if err != nil {
		return "", fmt.Errorf("current term: %w", err)
	}
	res, err := decode[termResponse](payload)
	if err != nil {
		return "", fmt.Errorf("current term: %w", err)
	}
	if len(res.Result) == 0 || res.Result[0].XqCode == "" {
		return "", fmt.Errorf("current term: %w: no term in response", ErrMalformedResponse)
	}
	return res.Result[0].XqCode.String(), nil
}

func (c Client) platformIndex() string {
	return c.endpoint("/back/coursePlatform/coursePlatform.shtml", url.Values{
		"method": {"toCoursePlatformIndex"},
	})
}

// Courses lists the courses of the term.
func (c Client) Courses(ctx context.Context, termCode string) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "client:Courses")
	defer span.End()

	payload, err := c.caller.Call(ctx, c.endpoint("/back/coursePlatform/course.shtml", url.Values{
		"method":   {"getCourseList"},
		"pagesize": {"100"},
		"page":     {"1"},
		"xqCode":   {termCode},
	}), c.platformIndex())
	if err != nil {
		return nil, fmt.Errorf("courses: %w", err)
	}
	res, err := decode[coursesResponse](payload)
	if err != nil {
		return nil, fmt.Errorf("courses: %w", err)
	}
	for i := range res.CourseList {
		res.CourseList[i].TermCode = termCode
	}
	if res.CourseList == nil {
		return []Course{}, nil
	}
	return res.CourseList, nil
}

// CourseReferer is the course page the portal expects assignment queries to come from.
func (c Client) CourseReferer(course Course) string {
	return c.endpoint("/back/coursePlatform/coursePlatform.shtml", url.Values{
		"method":     {"toCoursePlatform"},
		"courseId":   {course.CourseNum.String()},
		"dataSource": {"1"},
		"cId":        {course.ID.String()},
		"xkhId":      {course.FzID.String()},
		"xqCode":     {course.TermCode},
		"teacherId":  {course.TeacherID.String()},
	})
}

// Assignments lists the course's assignments of one subtype, an empty category
// is an empty slice.
func (c Client) Assignments(ctx context.Context, course Course, subtype Subtype) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "client:Assignments")
	defer span.End()

	payload, err := c.caller.Call(ctx, c.endpoint("/back/coursePlatform/homeWork.shtml", url.Values{
		"method":   {"getHomeWorkList"},
		"cId":      {course.ID.String()},
		"subType":  {fmt.Sprint(int(subtype))},
		"page":     {"1"},
		"pagesize": {"100"},
	}), c.CourseReferer(course))
	if err != nil {
		return nil, fmt.Errorf("assignments %s/%s: %w", course.ID, subtype, err)
	}
	res, err := decode[recordsResponse](payload)
	if err != nil {
		return nil, fmt.Errorf("assignments %s/%s: %w", course.ID, subtype, err)
	}
	if res.Message == NoDataMessage || res.CourseNoteList == nil {
		return []Record{}, nil
	}
	return res.CourseNoteList, nil
}
