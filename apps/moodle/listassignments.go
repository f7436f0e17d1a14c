package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/moodle/core/moodle"
)

func (cli *commandLine) listAssignments(ctx context.Context, courseID int) error {
	sess, err := cli.login(ctx)
	if err != nil {
		return err
	}
	course, err := cli.client.GetCourseAssignments(ctx, sess, courseID)
	if err != nil {
		return err
	}
	return cli.printCourse(course)
}

func (cli *commandLine) printCourse(course moodle.Course) error {
	fmt.Fprintln(cli.out, course)
	if len(course.Assignments) == 0 {
		fmt.Fprintln(cli.out, "No assignments found!")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName\tMax Grade\tDue Date & Time")
	for _, a := range course.Assignments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Name, moodle.FormatGrade(a.MaxGrade), a.DueDateString())
	}
	return w.Flush()
}
