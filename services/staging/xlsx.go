package staging

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	gradesSheet = "Grades"
	infoSheet   = "Info"

	filesSep = "\n"
)

var (
	gradesHeader = []interface{}{"User ID", "Name", "Email", "Status", "Submitted At", "Late (s)", "Files", "Grade", "Feedback"}

	infoCourseID     = "Course ID"
	infoCourse       = "Course"
	infoAssignmentID = "Assignment ID"
	infoAssignment   = "Assignment"
	infoMaxGrade     = "Max Grade"
)

// column indexes in gradesHeader
const (
	colUserID = iota
	colName
	colEmail
	colStatus
	colSubmittedAt
	colLate
	colFiles
	colGrade
	colFeedback
)

func encodeXLSX(w io.Writer, sheet Sheet) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); err == nil && cErr != nil {
			err = errors.Wrap(cErr, "closing xlsx")
		}
	}()

	if err = f.SetSheetName(f.GetSheetName(0), gradesSheet); err != nil {
		return errors.Wrap(err, "naming grades sheet")
	}
	if err = setRow(f, gradesSheet, 1, gradesHeader); err != nil {
		return err
	}
	for i, e := range sheet.Entries {
		var submittedAt string
		if !e.SubmittedAt.IsZero() {
			submittedAt = e.SubmittedAt.UTC().Format(time.RFC3339)
		}
		var grade, feedback interface{}
		if e.Grade != nil {
			grade = *e.Grade
		}
		if e.Feedback != nil {
			feedback = *e.Feedback
		}
		row := []interface{}{
			e.UserID, e.Name, e.Email, e.Status, submittedAt, e.LateSeconds,
			strings.Join(e.Files, filesSep), grade, feedback,
		}
		if err = setRow(f, gradesSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err = f.NewSheet(infoSheet); err != nil {
		return errors.Wrap(err, "creating info sheet")
	}
	info := [][]interface{}{
		{infoCourseID, sheet.CourseID},
		{infoCourse, sheet.Course},
		{infoAssignmentID, sheet.AssignmentID},
		{infoAssignment, sheet.Assignment},
		{infoMaxGrade, sheet.MaxGrade},
	}
	for i, row := range info {
		if err = setRow(f, infoSheet, i+1, row); err != nil {
			return err
		}
	}

	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing xlsx")
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "computing cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "writing %s row %d", sheet, row)
	}
	return nil
}

func decodeXLSX(r io.Reader) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, errors.Wrap(err, "opening xlsx")
	}
	defer func() { _ = f.Close() }()

	var sheet Sheet
	if err := decodeInfo(f, &sheet); err != nil {
		return Sheet{}, err
	}

	rows, err := f.GetRows(gradesSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "reading grades sheet")
	}
	sheet.Entries = make([]Entry, 0, len(rows))
	for i, row := range rows {
		if i == 0 || isBlank(row) { // header
			continue
		}
		e, err := decodeEntry(row)
		if err != nil {
			return Sheet{}, errors.Wrapf(err, "grades sheet row %d", i+1)
		}
		sheet.Entries = append(sheet.Entries, e)
	}
	return sheet, nil
}

func decodeInfo(f *excelize.File, sheet *Sheet) error {
	rows, err := f.GetRows(infoSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return errors.Wrap(err, "reading info sheet")
	}
	for i, row := range rows {
		key, val := cell(row, 0), cell(row, 1)
		switch key {
		case infoCourseID:
			sheet.CourseID, err = parseInt(val)
		case infoCourse:
			sheet.Course = val
		case infoAssignmentID:
			sheet.AssignmentID, err = parseInt(val)
		case infoAssignment:
			sheet.Assignment = val
		case infoMaxGrade:
			if val != "" {
				sheet.MaxGrade, err = strconv.ParseFloat(val, 64)
			}
		}
		if err != nil {
			return errors.Wrapf(err, "info sheet row %d (%s)", i+1, key)
		}
	}
	return nil
}

func decodeEntry(row []string) (Entry, error) {
	var e Entry
	var err error
	if e.UserID, err = parseInt(cell(row, colUserID)); err != nil {
		return Entry{}, errors.Wrap(err, "user id")
	}
	e.Name = cell(row, colName)
	e.Email = cell(row, colEmail)
	e.Status = cell(row, colStatus)
	if v := cell(row, colSubmittedAt); v != "" {
		if e.SubmittedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return Entry{}, errors.Wrap(err, "submitted at")
		}
	}
	if v := cell(row, colLate); v != "" {
		if e.LateSeconds, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Entry{}, errors.Wrap(err, "late")
		}
	}
	if v := cell(row, colFiles); v != "" {
		e.Files = strings.Split(v, filesSep)
	}
	if v := cell(row, colGrade); v != "" {
		grade, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Entry{}, errors.Wrap(err, "grade")
		}
		e.Grade = &grade
	}
	if v := cell(row, colFeedback); v != "" {
		e.Feedback = &v
	}
	return e, nil
}

// cell returns row[i], GetRows drops trailing empty cells.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	// numeric cells may come back as "12" or "12.0"
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	fl, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if fl != float64(int(fl)) {
		return 0, errors.Errorf("%q is not an integer", v)
	}
	return int(fl), nil
}
