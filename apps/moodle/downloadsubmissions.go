package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
	"github.com/trezcool/moodle/services/staging"
)

// downloadSubmissions saves every submission file of the assignment under dir/<full name>_<user id>/
// and optionally describes the submissions in the grades file `outputFile`.
func (cli *commandLine) downloadSubmissions(ctx context.Context, courseID, assignmentID int, dir, outputFile string) error {
	if outputFile != "" {
		if _, err := staging.FormatOf(outputFile); err != nil {
			return err
		}
	}

	sess, err := cli.login(ctx)
	if err != nil {
		return err
	}
	course, err := cli.client.GetCourseAssignments(ctx, sess, courseID)
	if err != nil {
		return err
	}
	assignment, err := course.GetAssignment(assignmentID)
	if err != nil {
		return err
	}
	subs, err := cli.client.GetSubmissions(ctx, sess, assignment.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%s\nAssignment (id: %d) :: %s - %d submission(s)\n", course, assignment.ID, assignment.Name, len(subs))
	sheet := staging.NewSheet(course, assignment)
	for _, sub := range subs {
		usr, err := cli.client.GetUser(ctx, sess, sub.UserID)
		if err != nil {
			return err
		}
		files, err := cli.downloadSubmission(ctx, sess, filepath.Join(dir, userDirName(usr)), sub)
		if err != nil {
			return errors.Wrapf(err, "downloading submission of %s", usr)
		}
		sheet.Entries = append(sheet.Entries, staging.NewEntry(assignment, usr, sub, files))

		late := ""
		if d := assignment.Lateness(sub); d > 0 {
			late = fmt.Sprintf(" (late: %s)", d)
		}
		fmt.Fprintf(cli.out, "  %s [%s]: %d file(s)%s\n", usr, sub.Status, len(files), late)
	}

	if outputFile != "" {
		if err := staging.Write(outputFile, sheet); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Grades file written to %s\n", outputFile)
	}
	cli.logger.Debug("submissions downloaded", map[string]interface{}{
		"course_id": course.ID, "assignment_id": assignment.ID, "submissions": len(subs),
	})
	return nil
}

func (cli *commandLine) downloadSubmission(ctx context.Context, sess moodle.Session, userDir string, sub moodle.Submission) ([]string, error) {
	files := make([]string, 0, len(sub.Files))
	for _, f := range sub.Files {
		dest, err := safeJoin(userDir, f.FullPath())
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating submission directory")
		}
		if err := cli.client.DownloadFile(ctx, sess, f, dest); err != nil {
			return nil, err
		}
		files = append(files, dest)
	}
	return files, nil
}

// safeJoin joins `rel` to `root` and makes sure the result stays inside `root`.
func safeJoin(root, rel string) (string, error) {
	dest := filepath.Join(root, rel)
	r, err := filepath.Rel(root, dest)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", core.NewArgumentError(fmt.Sprintf("unsafe submission file path %q", rel))
	}
	return dest, nil
}

// userDirName returns a directory name for the submission files of `usr`: "<full name>_<id>".
func userDirName(usr moodle.User) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, core.CleanString(usr.FullName))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "user"
	}
	return fmt.Sprintf("%s_%d", name, usr.ID)
}
