package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/moodle/core/moodle"
	"github.com/trezcool/moodle/services/staging"
)

// uploadGrades uploads every graded entry of the grades file at `path`. Ungraded entries are skipped.
func (cli *commandLine) uploadGrades(ctx context.Context, path string) error {
	sheet, err := staging.Read(path)
	if err != nil {
		return err
	}
	graded := sheet.Graded()
	if len(graded) == 0 {
		fmt.Fprintln(cli.out, "No grades to upload.")
		return nil
	}

	sess, err := cli.login(ctx)
	if err != nil {
		return err
	}
	course, err := cli.client.GetCourseAssignments(ctx, sess, sheet.CourseID)
	if err != nil {
		return err
	}
	assignment, err := course.GetAssignment(sheet.AssignmentID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%s\nAssignment (id: %d) :: %s - uploading %d grade(s)\n", course, assignment.ID, assignment.Name, len(graded))
	for _, e := range graded {
		usr, err := cli.client.GetUser(ctx, sess, e.UserID)
		if err != nil {
			return err
		}
		if err := cli.client.UploadGrade(ctx, sess, assignment, usr, *e.Grade, e.Feedback); err != nil {
			return errors.Wrapf(err, "uploading grade of %s", usr)
		}
		grade := moodle.ClampGrade(*e.Grade, assignment.MaxGrade)
		fmt.Fprintf(cli.out, "  %s: %s/%s\n", usr, moodle.FormatGrade(grade), moodle.FormatGrade(assignment.MaxGrade))
	}
	return nil
}
