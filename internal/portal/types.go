package portal

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString decodes JSON strings, numbers and null into a string, the portal
// is inconsistent about which one it sends for ids and counts.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Int parses the value as an integer, anything unparseable is 0.
func (f FlexString) Int() int {
	n, err := strconv.Atoi(string(f))
	if err != nil {
		fl, err := strconv.ParseFloat(string(f), 64)
		if err != nil {
			return 0
		}
		return int(fl)
	}
	return n
}

type Course struct {
	ID        FlexString `json:"id"`
	Name      string     `json:"name"`
	CourseNum FlexString `json:"course_num"`
	TeacherID FlexString `json:"teacher_id"`
	FzID      FlexString `json:"fz_id"`
	// TermCode is filled in by Client.Courses.
	TermCode string `json:"-"`
}

// UnmarshalJSON falls back to courseName when name is missing.
func (c *Course) UnmarshalJSON(data []byte) error {
	type plain Course
	var raw struct {
		plain
		CourseName string `json:"courseName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Course(raw.plain)
	if c.Name == "" {
		c.Name = raw.CourseName
	}
	return nil
}

// Subtype is the assignment category the homework endpoint is queried with.
type Subtype int

const (
	SubtypeHomework Subtype = iota
	SubtypeReport
	SubtypeExperiment
)

// Subtypes lists every category, in query order.
var Subtypes = []Subtype{SubtypeHomework, SubtypeReport, SubtypeExperiment}

func (s Subtype) String() string {
	switch s {
	case SubtypeHomework:
		return "homework"
	case SubtypeReport:
		return "report"
	case SubtypeExperiment:
		return "experiment"
	default:
		return "subtype(" + strconv.Itoa(int(s)) + ")"
	}
}

// Record is an assignment as the homework endpoint returns it.
type Record struct {
	ID          FlexString `json:"id"`
	Title       string     `json:"title"`
	CourseID    FlexString `json:"course_id"`
	EndTime     string     `json:"end_time"`
	OpenDate    string     `json:"open_date"`
	Content     string     `json:"content"`
	ContentType FlexString `json:"content_type"`
	SubStatus   string     `json:"subStatus"`
	SubmitCount FlexString `json:"submitCount"`
	AllCount    FlexString `json:"allCount"`
	Score       FlexString `json:"score"`
}

type termResponse struct {
	Result []struct {
		XqCode FlexString `json:"xqCode"`
	} `json:"result"`
}

type coursesResponse struct {
	CourseList []Course `json:"courseList"`
}

type recordsResponse struct {
	Message        string   `json:"message"`
	CourseNoteList []Record `json:"courseNoteList"`
}
