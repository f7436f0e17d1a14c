package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const fnGetAssignments = "mod_assign_get_assignments"

type Course struct {
	ID          int
	FullName    string
	Assignments []Assignment
}

type courseWire struct {
	ID          *int          `json:"id"`
	FullName    *string       `json:"fullname"`
	Assignments *[]Assignment `json:"assignments"`
}

func (c *Course) UnmarshalJSON(data []byte) error {
	var w courseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return missingField("id")
	case w.FullName == nil:
		return missingField("fullname")
	case w.Assignments == nil:
		return missingField("assignments")
	}
	*c = Course{ID: *w.ID, FullName: *w.FullName, Assignments: *w.Assignments}
	return nil
}

func (c Course) String() string {
	return fmt.Sprintf("Course (id: %d) :: %s", c.ID, c.FullName)
}

// GetAssignment looks up an assignment of the course; no request is made.
func (c Course) GetAssignment(assignmentID int) (Assignment, error) {
	for _, a := range c.Assignments {
		if a.ID == assignmentID {
			return a, nil
		}
	}
	return Assignment{}, notFound(KindAssignment, assignmentID)
}

type Assignment struct {
	ID       int
	Name     string
	MaxGrade float64
	DueDate  time.Time // UTC; zero if the assignment has no due date
}

type assignmentWire struct {
	ID       *int     `json:"id"`
	Name     *string  `json:"name"`
	MaxGrade *float64 `json:"grade"`
	DueDate  *int64   `json:"duedate"`
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	var w assignmentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return missingField("id")
	case w.Name == nil:
		return missingField("name")
	case w.MaxGrade == nil:
		return missingField("grade")
	case w.DueDate == nil:
		return missingField("duedate")
	}
	*a = Assignment{
		ID:       *w.ID,
		Name:     *w.Name,
		MaxGrade: *w.MaxGrade,
		DueDate:  unixTime(*w.DueDate),
	}
	return nil
}

// HasDueDate reports whether the assignment has a due date.
func (a Assignment) HasDueDate() bool { return !a.DueDate.IsZero() }

// DueDateString returns the due date in RFC 3339 format, or "-" if there is none.
func (a Assignment) DueDateString() string {
	if !a.HasDueDate() {
		return "-"
	}
	return a.DueDate.Format(time.RFC3339)
}

// Lateness returns how long after the due date `sub` was last modified, in whole seconds.
// It is never negative, and always 0 for an assignment without due date.
func (a Assignment) Lateness(sub Submission) time.Duration {
	if !a.HasDueDate() {
		return 0
	}
	late := sub.SubmittedAt.Sub(a.DueDate).Truncate(time.Second)
	if late < 0 {
		return 0
	}
	return late
}

// LateSeconds is Lateness in seconds.
func (a Assignment) LateSeconds(sub Submission) int64 {
	return int64(a.Lateness(sub) / time.Second)
}

type assignmentsResponse struct {
	Courses *[]Course `json:"courses"`
}

func (c *client) GetCourseAssignments(ctx context.Context, sess Session, courseID int) (Course, error) {
	params := url.Values{}
	params.Set("courseids[]", strconv.Itoa(courseID))

	var resp assignmentsResponse
	if err := c.call(ctx, sess, fnGetAssignments, params, &resp); err != nil {
		return Course{}, err
	}
	if resp.Courses == nil {
		return Course{}, &DecodeError{Op: fnGetAssignments, Err: missingField("courses")}
	}
	for _, course := range *resp.Courses {
		if course.ID == courseID {
			return course, nil
		}
	}
	return Course{}, notFound(KindCourse, courseID)
}

// unixTime converts unix seconds to UTC time; 0 is the zero time.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
