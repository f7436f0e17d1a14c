// Package staging reads & writes the grades file that download-submissions produces and
// upload-grades consumes. Supported formats are YAML (.yaml, .yml) and Excel (.xlsx).
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

type (
	Sheet struct {
		CourseID     int     `yaml:"course_id" validate:"required,gt=0"`
		Course       string  `yaml:"course,omitempty"`
		AssignmentID int     `yaml:"assignment_id" validate:"required,gt=0"`
		Assignment   string  `yaml:"assignment,omitempty"`
		MaxGrade     float64 `yaml:"max_grade"`
		Entries      []Entry `yaml:"entries" validate:"dive"`
	}

	// Entry is one student's submission. Grade is nil until the grader fills it in.
	Entry struct {
		UserID      int       `yaml:"user_id" validate:"required,gt=0"`
		Name        string    `yaml:"name,omitempty"`
		Email       string    `yaml:"email,omitempty"`
		Status      string    `yaml:"status,omitempty"`
		SubmittedAt time.Time `yaml:"submitted_at,omitempty"`
		LateSeconds int64     `yaml:"late_seconds"`
		Files       []string  `yaml:"files,omitempty"`
		Grade       *float64  `yaml:"grade"`
		Feedback    *string   `yaml:"feedback"`
	}
)

// NewSheet returns an empty Sheet for the given assignment of `course`.
func NewSheet(course moodle.Course, assignment moodle.Assignment) Sheet {
	return Sheet{
		CourseID:     course.ID,
		Course:       course.FullName,
		AssignmentID: assignment.ID,
		Assignment:   assignment.Name,
		MaxGrade:     assignment.MaxGrade,
		Entries:      []Entry{},
	}
}

// NewEntry describes the submission `sub` of `usr` for `assignment`; `files` are the local paths
// the submission files were saved to.
func NewEntry(assignment moodle.Assignment, usr moodle.User, sub moodle.Submission, files []string) Entry {
	return Entry{
		UserID:      usr.ID,
		Name:        usr.FullName,
		Email:       usr.Email,
		Status:      sub.Status,
		SubmittedAt: sub.SubmittedAt,
		LateSeconds: assignment.LateSeconds(sub),
		Files:       files,
	}
}

// Graded returns the entries that have a grade.
func (s Sheet) Graded() []Entry {
	graded := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Grade != nil {
			graded = append(graded, e)
		}
	}
	return graded
}

// Validate checks ids only: grades are not range checked since they are clamped when uploaded.
func (s Sheet) Validate() error {
	if err := core.Validate.Struct(s); err != nil {
		return core.NewFieldErrors(err)
	}
	seen := make(map[int]bool, len(s.Entries))
	for i, e := range s.Entries {
		if seen[e.UserID] {
			fld := fmt.Sprintf("entries[%d].user_id", i)
			err := errors.Errorf("duplicate entry for user %d", e.UserID)
			return core.NewValidationError(err, core.FieldError{Field: fld, Error: err.Error()})
		}
		seen[e.UserID] = true
	}
	return nil
}

// FormatOf returns the Format matching the extension of `path`.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", core.NewArgumentError(fmt.Sprintf("%s: unsupported grades file format (want .yaml, .yml or .xlsx)", path))
	}
}

func Encode(w io.Writer, format Format, sheet Sheet) error {
	switch format {
	case FormatYAML:
		return encodeYAML(w, sheet)
	case FormatXLSX:
		return encodeXLSX(w, sheet)
	default:
		return core.NewArgumentError(fmt.Sprintf("unsupported format %q", format))
	}
}

func Decode(r io.Reader, format Format) (Sheet, error) {
	switch format {
	case FormatYAML:
		return decodeYAML(r)
	case FormatXLSX:
		return decodeXLSX(r)
	default:
		return Sheet{}, core.NewArgumentError(fmt.Sprintf("unsupported format %q", format))
	}
}

// Write saves `sheet` to `path`, in the format matching its extension.
func Write(path string, sheet Sheet) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating grades file")
	}
	err = Encode(f, format, sheet)
	if cErr := f.Close(); err == nil && cErr != nil {
		err = errors.Wrap(cErr, "closing grades file")
	}
	return errors.Wrapf(err, "writing %s", path)
}

// Read loads and validates the grades file at `path`.
func Read(path string) (Sheet, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Sheet{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Sheet{}, errors.Wrap(err, "opening grades file")
	}
	defer func() { _ = f.Close() }()

	sheet, err := Decode(f, format)
	if err != nil {
		return Sheet{}, errors.Wrapf(err, "reading %s", path)
	}
	if err := sheet.Validate(); err != nil {
		return Sheet{}, errors.Wrapf(err, "validating %s", path)
	}
	return sheet, nil
}
